package metrics

import (
	"context"

	"imagesynth/imagegen"
)

// Tee returns a recorder that forwards every attempt to each non-nil recorder
// in order. It returns nil when none remain.
func Tee(recorders ...imagegen.AttemptRecorder) imagegen.AttemptRecorder {
	var out teeRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

type teeRecorder []imagegen.AttemptRecorder

func (t teeRecorder) RecordAttempt(ctx context.Context, e imagegen.AttemptEntry) {
	for _, r := range t {
		r.RecordAttempt(ctx, e)
	}
}
