package imagegen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandomSeed returns a uniformly random seed in [0, MaxSeed].
func RandomSeed() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("imagegen: read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(buf[:])), nil
}
