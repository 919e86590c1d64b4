package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadClaims is the content of a signed download token.
type DownloadClaims struct {
	ExportID  string
	File      string
	ExpiresAt time.Time
}

// SignedURLSigner issues and verifies HMAC-SHA256 download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner builds a signer. A non-positive ttl defaults to one hour.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration { return s.ttl }

// Generate signs a token pointing at file for exportID.
func (s *SignedURLSigner) Generate(exportID, file string) (string, time.Time, error) {
	if exportID == "" || file == "" {
		return "", time.Time{}, fmt.Errorf("export id and file are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	if strings.Contains(exportID, "|") {
		return "", time.Time{}, fmt.Errorf("export id contains separator")
	}

	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	payload := strings.Join([]string{exportID, strconv.FormatInt(expiresAt.Unix(), 10), file}, "|")
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + s.sign(encoded), expiresAt, nil
}

// Parse verifies the signature and, unless allowExpired is set, the expiry.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (DownloadClaims, error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return DownloadClaims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(signature)) {
		return DownloadClaims{}, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return DownloadClaims{}, ErrInvalidToken
	}
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 {
		return DownloadClaims{}, ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return DownloadClaims{}, ErrInvalidToken
	}

	claims := DownloadClaims{ExportID: parts[0], File: parts[2], ExpiresAt: time.Unix(exp, 0).UTC()}
	if !allowExpired && !s.now().Before(claims.ExpiresAt) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (s *SignedURLSigner) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
