package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const shortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ShortIDLength is the length of share ids (62^8 ≈ 2.18e14 ids).
const ShortIDLength = 8

var alphabetSize = big.NewInt(int64(len(shortIDAlphabet)))

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewShortID returns n characters drawn uniformly from [A-Za-z0-9].
func NewShortID(n int) string {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		out[i] = shortIDAlphabet[idx.Int64()]
	}
	return string(out)
}

// IsShortID reports whether s has the shape of a share id.
func IsShortID(s string) bool {
	if len(s) != ShortIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
