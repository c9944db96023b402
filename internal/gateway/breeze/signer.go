// Package breeze implements the ICICI Direct Breeze broker API: a REST
// client for orders, funds and quotes, plus a WebSocket quote stream.
package breeze

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Signer handles Breeze API authentication.
// It stores keys as []byte to allow memory wiping.
type Signer struct {
	appKey       []byte
	secretKey    []byte
	sessionToken []byte
}

// NewSigner creates a new signer.
// It converts string inputs to []byte for internal safety.
func NewSigner(appKey, secretKey, sessionToken string) *Signer {
	return &Signer{
		appKey:       []byte(appKey),
		secretKey:    []byte(secretKey),
		sessionToken: []byte(sessionToken),
	}
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	s.wipeSlice(s.appKey)
	s.wipeSlice(s.secretKey)
	s.wipeSlice(s.sessionToken)
}

func (s *Signer) wipeSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateHeaders creates the required headers for a Breeze request.
// The checksum covers timestamp + body, keyed by the API secret.
func (s *Signer) GenerateHeaders(body string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	payload := timestamp + body
	checksum := s.computeHmacSha256(payload)

	return map[string]string{
		"X-AppKey":       string(s.appKey),
		"X-Checksum":     "token " + checksum,
		"X-Timestamp":    timestamp,
		"X-SessionToken": string(s.sessionToken),
		"Content-Type":   "application/json",
	}
}

func (s *Signer) computeHmacSha256(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
