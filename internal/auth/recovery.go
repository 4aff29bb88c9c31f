package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Recovery code format: two 10-character alphanumeric segments joined by a
// dash, e.g. "a3F9kL2mQx-7RtPz0vWy1". Single use.
const (
	recoverySegmentLen = 10
	recoveryCharset    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateRecoveryCodes generates count fresh single-use recovery codes.
func GenerateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		left, err := randomSegment(recoverySegmentLen)
		if err != nil {
			return nil, err
		}
		right, err := randomSegment(recoverySegmentLen)
		if err != nil {
			return nil, err
		}
		codes[i] = left + "-" + right
	}

	return codes, nil
}

func randomSegment(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random segment: %w", err)
	}

	for i, b := range buf {
		buf[i] = recoveryCharset[int(b)%len(recoveryCharset)]
	}

	return string(buf), nil
}

// MatchRecoveryCode scans codes for candidate in constant time per entry and
// returns the index of the match, or -1. Every entry is compared so the scan
// time does not depend on where the match sits.
func MatchRecoveryCode(candidate string, codes []string) int {
	match := -1
	for i, code := range codes {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 && match == -1 {
			match = i
		}
	}

	return match
}
