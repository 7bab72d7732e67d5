package shutdown

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"imagesynth/logging"
)

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.FromZap(zaptest.NewLogger(t))
}
