package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCodeLength   = 6
	SessionCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateSessionCode generates a short human-typeable session code
func GenerateSessionCode() string {
	b := make([]byte, SessionCodeLength)
	max := big.NewInt(int64(len(SessionCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("session code: %v", err))
		}
		b[i] = SessionCodeAlphabet[n.Int64()]
	}
	return string(b)
}

// GenerateDeviceID generates a stable opaque device id
func GenerateDeviceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// GenerateRecordingID generates a unique recording ID
func GenerateRecordingID() string {
	return uuid.NewString()
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
