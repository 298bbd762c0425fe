// Package ludo holds the board rules: dice, token movement, capture and victory.
// Nothing here touches storage or clocks.
package ludo

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrEntropyUnavailable is returned when the random source cannot be read.
// Rolls never fall back to a default face.
var ErrEntropyUnavailable = errors.New("dice entropy source unavailable")

// Roller produces one die face in [1,6].
type Roller interface {
	Roll() (int, error)
}

// largest multiple of 6 that fits in a byte; bytes at or above it are redrawn
const rejectThreshold = 252

// CryptoDice draws faces from a cryptographically secure source with rejection sampling.
type CryptoDice struct {
	src io.Reader
}

func NewCryptoDice() *CryptoDice {
	return &CryptoDice{src: rand.Reader}
}

// NewDiceFromReader builds dice over an arbitrary byte source.
func NewDiceFromReader(r io.Reader) *CryptoDice {
	return &CryptoDice{src: r}
}

func (d *CryptoDice) Roll() (int, error) {
	var b [1]byte
	for {
		if _, err := io.ReadFull(d.src, b[:]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
		}
		if b[0] >= rejectThreshold {
			continue
		}
		return int(b[0])%6 + 1, nil
	}
}
