// Package creds persists per-account credential envelopes: the identity
// material required to re-establish a connection without re-pairing.
package creds

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Credentials is the identity block of an envelope.
type Credentials struct {
	DeviceID       string `json:"deviceId"`
	PhoneID        string `json:"phoneId"`
	IdentityID     string `json:"identityId"`
	RegistrationID uint32 `json:"registrationId"`
	NoiseKey       string `json:"noiseKey"`
	IdentityKey    string `json:"identityKey"`
	PreKeyCounter  uint32 `json:"preKeyCounter"`
}

// Envelope is the full persisted credential document. Keys holds opaque
// provider key material that is carried through verbatim.
type Envelope struct {
	Creds     Credentials       `json:"creds"`
	Keys      map[string]string `json:"keys"`
	CreatedAt time.Time         `json:"createdAt"`
	LastUsed  time.Time         `json:"lastUsed"`
}

// Valid reports whether the envelope is structurally usable: device id,
// phone id and identity id must all be present.
func (e *Envelope) Valid() bool {
	if e == nil {
		return false
	}
	return e.Creds.DeviceID != "" && e.Creds.PhoneID != "" && e.Creds.IdentityID != ""
}

// Stale reports whether the envelope is older than maxAge. A stale envelope
// is treated as invalid even when structurally intact, forcing re-pairing.
func (e *Envelope) Stale(maxAge time.Duration) bool {
	if e == nil || e.CreatedAt.IsZero() {
		return true
	}
	return time.Since(e.CreatedAt) > maxAge
}

// BumpPreKeys advances the monotonically increasing pre-key counter.
func (e *Envelope) BumpPreKeys(n uint32) {
	e.Creds.PreKeyCounter += n
}

// NewEnvelope synthesizes a fresh, structurally valid envelope.
func NewEnvelope() *Envelope {
	now := time.Now()
	return &Envelope{
		Creds: Credentials{
			DeviceID:       uuid.NewString(),
			PhoneID:        uuid.NewString(),
			IdentityID:     uuid.NewString(),
			RegistrationID: randomRegistrationID(),
			NoiseKey:       randomKey(),
			IdentityKey:    randomKey(),
			PreKeyCounter:  0,
		},
		Keys:      map[string]string{},
		CreatedAt: now,
		LastUsed:  now,
	}
}

func randomKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawStdEncoding.EncodeToString(buf)
}

func randomRegistrationID() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	// Registration ids are 14-bit values on the wire, never zero.
	id := binary.BigEndian.Uint32(buf[:]) % 16380
	return id + 1
}

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)

// ValidPhoneNumber reports whether phone looks like a usable E.164 number.
func ValidPhoneNumber(phone string) bool {
	return phonePattern.MatchString(phone)
}
