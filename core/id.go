package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewConnectionID mints a unique identifier for a websocket connection.
func NewConnectionID() string {
	return "conn_" + randomHex(8)
}

// NewSessionID mints a study-session identifier in the original wire format.
func NewSessionID() string {
	return fmt.Sprintf("session_%d", time.Now().UnixMilli())
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}
