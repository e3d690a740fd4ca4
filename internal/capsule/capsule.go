// Package capsule signs and verifies safety capsules: compact tokens that
// bind an offered price to one session round so a client cannot accept a
// price the engine never issued.
package capsule

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"
)

const signatureSize = ed25519.SignatureSize

var (
	hkdfSalt = []byte("bargain-capsule")
	hkdfInfo = []byte("ed25519-seed-v1")
)

const minSecretLength = 32

var (
	ErrMalformed   = errors.New("capsule: malformed token")
	ErrSignature   = errors.New("capsule: invalid signature")
	ErrExpired     = errors.New("capsule: expired")
	ErrNotYetValid = errors.New("capsule: issued in the future")
	ErrMismatch    = errors.New("capsule: does not match session")
	ErrWeakSecret  = errors.New("capsule: secret too short")
)

// Claims is the signed payload. Prices travel as integer cents so the
// encoding is exact.
type Claims struct {
	SessionID     string `cbor:"1,keyasint"`
	Round         int    `cbor:"2,keyasint"`
	PriceCents    int64  `cbor:"3,keyasint"`
	Currency      string `cbor:"4,keyasint"`
	PolicyVersion string `cbor:"5,keyasint"`
	IssuedAt      int64  `cbor:"6,keyasint"`
	ExpiresAt     int64  `cbor:"7,keyasint"`
}

func (c Claims) Price() float64 {
	return float64(c.PriceCents) / 100
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("capsule: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("capsule: CBOR decoder initialization failed: " + err.Error())
	}
}

type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	ttl  time.Duration
	skew time.Duration
}

// NewSigner derives the signing key from secret with HKDF-SHA256.
func NewSigner(secret string, ttl, skew time.Duration) (*Signer, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), hkdfSalt, hkdfInfo), seed); err != nil {
		return nil, fmt.Errorf("capsule: derive key: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
		ttl:  ttl,
		skew: skew,
	}, nil
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue signs claims for an offer made at now. IssuedAt and ExpiresAt are
// filled from now and the signer's TTL.
func (s *Signer) Issue(c Claims, now time.Time) (string, error) {
	c.IssuedAt = now.Unix()
	c.ExpiresAt = now.Add(s.ttl).Unix()

	payload, err := encMode.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("capsule: encode claims: %w", err)
	}
	sig := ed25519.Sign(s.priv, payload)

	token := make([]byte, len(payload)+signatureSize)
	copy(token, payload)
	copy(token[len(payload):], sig)
	return base64.RawURLEncoding.EncodeToString(token), nil
}

// Verify checks the signature and validity window. It fails closed: any
// decoding problem is a rejection.
func (s *Signer) Verify(token string, now time.Time) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= signatureSize {
		return nil, ErrMalformed
	}
	split := len(raw) - signatureSize
	payload, sig := raw[:split], raw[split:]

	if !ed25519.Verify(s.pub, payload, sig) {
		return nil, ErrSignature
	}

	var c Claims
	if err := decMode.Unmarshal(payload, &c); err != nil {
		return nil, ErrMalformed
	}

	if time.Unix(c.IssuedAt, 0).After(now.Add(s.skew)) {
		return nil, ErrNotYetValid
	}
	if !now.Before(time.Unix(c.ExpiresAt, 0).Add(s.skew)) {
		return nil, ErrExpired
	}
	return &c, nil
}

// VerifyFor additionally binds the capsule to a session round and price.
func (s *Signer) VerifyFor(token, sessionID string, round int, priceCents int64, now time.Time) (*Claims, error) {
	c, err := s.Verify(token, now)
	if err != nil {
		return nil, err
	}
	if c.SessionID != sessionID || c.Round != round || c.PriceCents != priceCents {
		return nil, ErrMismatch
	}
	return c, nil
}
