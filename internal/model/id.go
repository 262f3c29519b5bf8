package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var sessionIDRegex = regexp.MustCompile(`^ses_[0-9]{10}_[0-9a-f]{8}$`)

// GenerateSessionID mints an identifier for a recording session:
// ses_<unix seconds, zero padded>_<4 random bytes hex>.
func GenerateSessionID() (string, error) {
	timestamp := time.Now().Unix()
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("ses_%010d_%s", timestamp, hex.EncodeToString(randomBytes)), nil
}

func ValidateSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// SessionIDTime extracts the start timestamp embedded in a session ID.
func SessionIDTime(id string) (time.Time, error) {
	if !ValidateSessionID(id) {
		return time.Time{}, fmt.Errorf("invalid session ID format: %s", id)
	}
	tsStr := id[len("ses_") : len("ses_")+10]
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp from session ID %s: %w", id, err)
	}
	return time.Unix(ts, 0), nil
}
