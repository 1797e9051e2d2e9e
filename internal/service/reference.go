package service

import (
	"crypto/rand"
	"fmt"
)

const (
	referenceAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ReferenceLength        = 12
	PaymentReferenceLength = 20
)

// NewReference returns a random 12 character uppercase alphanumeric
// reservation reference.
func NewReference() (string, error) {
	return randomCode(ReferenceLength)
}

// NewPaymentReference returns a random 20 character payment reference.
func NewPaymentReference() (string, error) {
	return randomCode(PaymentReferenceLength)
}

// randomCode draws n symbols from referenceAlphabet with crypto/rand.
// Bytes at or above the largest multiple of the alphabet size are
// discarded so every symbol is equally likely.
func randomCode(n int) (string, error) {
	const size = len(referenceAlphabet)
	const limit = 256 - 256%size
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate reference: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, referenceAlphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
