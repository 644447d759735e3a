package common

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// MakeRandHexString returns size random bytes encoded as hex (2*size chars).
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomAlnum returns n lowercase base36 characters.
func RandomAlnum(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36[idx.Int64()])
	}
	return sb.String(), nil
}

// StripBearer removes an optional "Bearer " prefix and surrounding spaces.
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= len(BearerPrefix) && strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return strings.TrimSpace(header[len(BearerPrefix):])
	}
	return header
}
