package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const orderNumberRandomLen = 9

// newOrderNumber builds the externally shown order identifier:
// ORD-<epoch millis>-<9 random base36 chars>. The random part comes from
// crypto/rand so numbers cannot be guessed from each other; the
// timestamp keeps concurrent creations distinguishable.
func newOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), randomBase36(rand.Reader, orderNumberRandomLen))
}

// randomBase36 draws n characters from the alphabet with uniform
// probability. 252 is the largest multiple of 36 that fits in a byte;
// bytes at or above it are redrawn rather than folded onto the low
// characters.
func randomBase36(r io.Reader, n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			// crypto/rand failing means the process is in no state to
			// take orders at all.
			panic(fmt.Sprintf("order number entropy unavailable: %v", err))
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, orderNumberAlphabet[int(b)%len(orderNumberAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
