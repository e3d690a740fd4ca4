package capsule

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

var (
	testSecret = strings.Repeat("s", 32)
	issuedAt   = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
)

func newTestSigner(t *testing.T, secret string) *Signer {
	t.Helper()
	s, err := NewSigner(secret, 5*time.Minute, 5*time.Second)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	return s
}

func sampleClaims() Claims {
	return Claims{SessionID: "9f1c2d4e-0000-4000-8000-000000000001", Round: 2, PriceCents: 13200, Currency: "USD", PolicyVersion: "v1"}
}

func TestIssueVerify(t *testing.T) {
	s := newTestSigner(t, testSecret)
	token, err := s.Issue(sampleClaims(), issuedAt)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	c, err := s.VerifyFor(token, sampleClaims().SessionID, 2, 13200, issuedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyFor() error = %v", err)
	}
	if c.Price() != 132 || c.PolicyVersion != "v1" || c.ExpiresAt != issuedAt.Add(5*time.Minute).Unix() {
		t.Errorf("claims = %+v", c)
	}

	again, _ := s.Issue(sampleClaims(), issuedAt)
	if again != token {
		t.Error("encoding is not deterministic")
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	s := newTestSigner(t, testSecret)
	other := newTestSigner(t, strings.Repeat("o", 32))
	token, _ := s.Issue(sampleClaims(), issuedAt)
	future, _ := s.Issue(sampleClaims(), issuedAt.Add(time.Minute))

	raw, _ := base64.RawURLEncoding.DecodeString(token)
	raw[3] ^= 0xff
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	tests := []struct {
		name  string
		token string
		now   time.Time
		s     *Signer
		want  error
	}{
		{name: "tampered payload", token: tampered, now: issuedAt, s: s, want: ErrSignature},
		{name: "different key", token: token, now: issuedAt, s: other, want: ErrSignature},
		{name: "garbage", token: "not-a-capsule", now: issuedAt, s: s, want: ErrMalformed},
		{name: "empty", token: "", now: issuedAt, s: s, want: ErrMalformed},
		{name: "expired", token: token, now: issuedAt.Add(5*time.Minute + 5*time.Second), s: s, want: ErrExpired},
		{name: "issued beyond skew", token: future, now: issuedAt, s: s, want: ErrNotYetValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.s.Verify(tt.token, tt.now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.want)
			}
			if c != nil {
				t.Error("claims returned alongside an error")
			}
		})
	}
}

func TestVerify_SkewTolerance(t *testing.T) {
	s := newTestSigner(t, testSecret)
	token, _ := s.Issue(sampleClaims(), issuedAt.Add(3*time.Second))
	if _, err := s.Verify(token, issuedAt); err != nil {
		t.Errorf("capsule issued within skew rejected: %v", err)
	}
	if _, err := s.Verify(token, issuedAt.Add(3*time.Second+5*time.Minute+4*time.Second)); err != nil {
		t.Errorf("capsule inside the skew grace period rejected: %v", err)
	}
}

func TestVerifyFor_Mismatch(t *testing.T) {
	s := newTestSigner(t, testSecret)
	token, _ := s.Issue(sampleClaims(), issuedAt)
	sid := sampleClaims().SessionID

	tests := []struct {
		name  string
		sid   string
		round int
		cents int64
	}{
		{"other session", "9f1c2d4e-0000-4000-8000-000000000002", 2, 13200},
		{"replayed round", sid, 1, 13200},
		{"different price", sid, 2, 12000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.VerifyFor(token, tt.sid, tt.round, tt.cents, issuedAt); !errors.Is(err, ErrMismatch) {
				t.Errorf("VerifyFor() error = %v, want ErrMismatch", err)
			}
		})
	}
}

func TestNewSigner_WeakSecret(t *testing.T) {
	if _, err := NewSigner("short", time.Minute, 0); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewSigner() error = %v, want ErrWeakSecret", err)
	}
}
