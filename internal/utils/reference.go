package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

var referenceSuffixMax = big.NewInt(10000)

// GenerateReferenceNumber returns a customer-facing reference such as
// MBX-20251027-103000-123-4567.
func GenerateReferenceNumber(prefix string) string {
	return referenceAt(prefix, time.Now().UTC())
}

func referenceAt(prefix string, at time.Time) string {
	suffix := int64(at.UnixNano() % 10000)
	if n, err := rand.Int(rand.Reader, referenceSuffixMax); err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("%s-%s-%03d-%04d",
		prefix, at.Format("20060102-150405"), at.Nanosecond()/int(time.Millisecond), suffix)
}
