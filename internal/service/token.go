package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// sessionTokenBytes yields 64-char hex tokens. Fixed length, unguessable.
const sessionTokenBytes = 32

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session token entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
