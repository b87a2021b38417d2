package core

import (
	"crypto/rand"
	"fmt"

	"pharmacore/pkg/domain"
)

const (
	refAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	refLength   = 10
	refAttempts = 16
)

func randomReference() (string, error) {
	buf := make([]byte, refLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reference entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = refAlphabet[int(b)%len(refAlphabet)]
	}
	return string(buf), nil
}

// nextReference draws reference numbers until one is unused across both
// reservations and prescription requests in the transaction's view.
func nextReference(v domain.TransactionView) (string, error) {
	taken := make(map[string]struct{})
	for _, r := range v.ListReservations() {
		taken[r.ReferenceNumber] = struct{}{}
	}
	for _, p := range v.ListPrescriptionRequests() {
		taken[p.ReferenceNumber] = struct{}{}
	}
	for i := 0; i < refAttempts; i++ {
		ref, err := randomReference()
		if err != nil {
			return "", err
		}
		if _, dup := taken[ref]; !dup {
			return ref, nil
		}
	}
	return "", fmt.Errorf("reference space exhausted after %d attempts", refAttempts)
}
