package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const adminTokenVersion = 1

// AdminAuth issues and verifies stateless, signed admin tokens. Unlike the
// source system (which derives the HMAC signing key directly from the
// plaintext admin password), the password is bcrypt-hashed for storage and
// the signing key is derived from that hash, so a leaked config/DB value
// never yields the raw password.
type AdminAuth struct {
	username     string
	passwordHash []byte
}

// NewAdminAuth bcrypt-hashes adminPassword for storage. Enabled reports
// false when either credential is empty, matching is_admin_auth_enabled.
func NewAdminAuth(adminUsername, adminPassword string) (*AdminAuth, error) {
	if adminUsername == "" || adminPassword == "" {
		return &AdminAuth{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &AdminAuth{username: adminUsername, passwordHash: hash}, nil
}

// Enabled reports whether admin auth is configured at all.
func (a *AdminAuth) Enabled() bool {
	return a.username != "" && len(a.passwordHash) > 0
}

func (a *AdminAuth) signingKey() []byte {
	mac := hmac.New(sha256.New, a.passwordHash)
	mac.Write([]byte(a.username))
	return mac.Sum(nil)
}

type adminTokenPayload struct {
	Version int    `json:"v"`
	Subject string `json:"sub"`
	IssuedAt int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
	Nonce   string `json:"nonce"`
}

// CreateToken issues a new signed token valid for ttl.
func (a *AdminAuth) CreateToken(ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("admin auth is not configured")
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now().UTC()
	payload := adminTokenPayload{
		Version:   adminTokenVersion,
		Subject:   a.username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Nonce:     base64.RawURLEncoding.EncodeToString(nonce),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadBytes)

	sig := hmac.New(sha256.New, a.signingKey())
	sig.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(sig.Sum(nil))

	return payloadB64 + "." + sigB64, nil
}

// VerifyToken validates signature, version, subject and expiry.
func (a *AdminAuth) VerifyToken(token string) bool {
	if !a.Enabled() {
		return false
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}
	payloadB64, sigB64 := parts[0], parts[1]

	expectedSig := hmac.New(sha256.New, a.signingKey())
	expectedSig.Write([]byte(payloadB64))
	expected := expectedSig.Sum(nil)

	actual, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	if subtle.ConstantTimeCompare(expected, actual) != 1 {
		return false
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return false
	}
	var payload adminTokenPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return false
	}

	if payload.Version != adminTokenVersion || payload.Subject != a.username {
		return false
	}
	return time.Now().UTC().Unix() < payload.ExpiresAt
}
