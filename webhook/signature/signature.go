package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretPrefix is the prefix for generated webhook secrets
	SecretPrefix = "whsec_"

	// SignatureVersion is the version identifier for symmetric signatures
	SignatureVersion = "v1"

	// MinSecretBytes is the minimum secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum secret size (512 bits)
	MaxSecretBytes = 64

	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// Secret is a webhook signing secret
type Secret struct {
	raw     []byte
	encoded string
}

// GenerateSecret creates a new random signing secret of size bytes
func GenerateSecret(size int) (Secret, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return Secret{}, fmt.Errorf("generating random bytes: %w", err)
	}

	return Secret{
		raw:     raw,
		encoded: SecretPrefix + base64.StdEncoding.EncodeToString(raw),
	}, nil
}

/* ParseSecret accepts either a generated whsec_ secret or any other opaque token
 * Opaque tokens are used as raw HMAC key bytes, so secrets supplied by
 * integrators at registration time keep working
 */
func ParseSecret(encoded string) (Secret, error) {
	if encoded == "" {
		return Secret{}, fmt.Errorf("secret is empty")
	}
	if !strings.HasPrefix(encoded, SecretPrefix) {
		return Secret{raw: []byte(encoded), encoded: encoded}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, SecretPrefix))
	if err != nil {
		return Secret{}, fmt.Errorf("decoding base64 secret: %w", err)
	}
	if len(raw) < MinSecretBytes || len(raw) > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	return Secret{raw: raw, encoded: encoded}, nil
}

// String returns the encoded secret
func (s Secret) String() string {
	return s.encoded
}

// Bytes returns the HMAC key bytes
func (s Secret) Bytes() []byte {
	return s.raw
}

// IsZero reports whether the secret is unset
func (s Secret) IsZero() bool {
	return len(s.raw) == 0
}

// Signature is a versioned signature value
type Signature struct {
	Version   string
	Signature string
}

// String returns the signature in the format: v1,<base64_signature>
func (s Signature) String() string {
	return fmt.Sprintf("%s,%s", s.Version, s.Signature)
}

// ParseSignature parses a signature string in the format: v1,<base64_signature>
func ParseSignature(sig string) (Signature, error) {
	version, value, ok := strings.Cut(sig, ",")
	if !ok {
		return Signature{}, fmt.Errorf("invalid signature format, expected 'version,signature'")
	}
	return Signature{Version: version, Signature: value}, nil
}

// Sign computes HMAC-SHA256 over {msgID}.{unix timestamp}.{body}
func Sign(secret Secret, msgID string, timestamp time.Time, body []byte) (Signature, error) {
	if secret.IsZero() {
		return Signature{}, fmt.Errorf("secret is empty")
	}
	if strings.Contains(msgID, ".") {
		return Signature{}, fmt.Errorf("message ID must not contain '.'")
	}

	mac := hmac.New(sha256.New, secret.Bytes())
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)

	return Signature{
		Version:   SignatureVersion,
		Signature: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// Verify checks a signature using constant-time comparison
func Verify(secret Secret, msgID string, timestamp time.Time, body []byte, expected Signature) (bool, error) {
	if expected.Version != SignatureVersion {
		return false, fmt.Errorf("unsupported signature version: %s", expected.Version)
	}

	calculated, err := Sign(secret, msgID, timestamp, body)
	if err != nil {
		return false, fmt.Errorf("calculating signature: %w", err)
	}

	want, err := base64.StdEncoding.DecodeString(expected.Signature)
	if err != nil {
		return false, fmt.Errorf("decoding expected signature: %w", err)
	}
	got, err := base64.StdEncoding.DecodeString(calculated.Signature)
	if err != nil {
		return false, fmt.Errorf("decoding calculated signature: %w", err)
	}

	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// SetHeaders signs body and writes the id, timestamp and signature headers
func SetHeaders(h http.Header, secret Secret, msgID string, timestamp time.Time, body []byte) error {
	sig, err := Sign(secret, msgID, timestamp, body)
	if err != nil {
		return err
	}
	h.Set(HeaderID, msgID)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestamp.Unix(), 10))
	h.Set(HeaderSignature, sig.String())
	return nil
}

// VerifyRequest validates the signature headers of a received request
// Receivers use it; tests use it to check what the executor sent
func VerifyRequest(secret Secret, h http.Header, body []byte) (bool, error) {
	msgID := h.Get(HeaderID)
	if msgID == "" {
		return false, fmt.Errorf("missing %s header", HeaderID)
	}

	unix, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return false, fmt.Errorf("parsing %s header: %w", HeaderTimestamp, err)
	}

	// The header may carry several space-delimited signatures during secret rotation
	for _, part := range strings.Fields(h.Get(HeaderSignature)) {
		sig, err := ParseSignature(part)
		if err != nil {
			continue
		}
		ok, err := Verify(secret, msgID, time.Unix(unix, 0), body, sig)
		if err == nil && ok {
			return true, nil
		}
	}
	return false, nil
}
