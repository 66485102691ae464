// File: internal/infra/security/envelope.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"avatar-therapy-chat/internal/infra/metrics"
)

// Placeholder is returned whenever stored content cannot be decoded. Decode
// is a total function over all string inputs; the chat UI must never see an
// error from it.
const Placeholder = "[Encrypted Content]"

const (
	// fallbackPrefix tags base64-wrapped plaintext written when encryption
	// was unavailable on the client.
	fallbackPrefix = "FALLBACK:"
	// unencryptedMarker is the prefix older app versions put inside a bare
	// base64 wrapper.
	unencryptedMarker = "UNENCRYPTED:"
	// saltedMarker is base64("Salted__"), the structural prefix of the
	// OpenSSL salted-cipher format.
	saltedMarker = "U2FsdGVkX1"

	// plaintextMaxLen bounds the legacy-plaintext passthrough heuristic.
	// Historical rows depend on this exact threshold.
	plaintextMaxLen = 100
	// base64MinLen: shorter base64-looking strings are still treated as
	// legacy plaintext. Historical threshold, do not change.
	base64MinLen = 20
)

// Key material carried for backward compatibility with already-stored rows.
// The static key is a known weakness; it stays because rotating it would
// orphan historical ciphertext. New schemes plug in via MessageCodec.
const (
	currentKey       = "avatar-therapy-message-key-v2-2024"
	defaultKeySource = "default-encryption-key"
	legacyStaticKey  = "companion-chat-legacy-key"
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// MessageCodec is the storage envelope applied to message content. Decode
// never fails; it degrades to Placeholder.
type MessageCodec interface {
	Encode(plaintext string) string
	Decode(stored string) string
}

var _ MessageCodec = (*Envelope)(nil)

// Envelope implements MessageCodec with an OpenSSL-compatible salted
// AES-256-CBC cipher plus the full chain of historical fallback formats.
type Envelope struct {
	key        string
	legacyKeys []string
}

// NewEnvelope builds the envelope. An empty key selects the shipped static
// key so historical rows keep decoding.
func NewEnvelope(key string) *Envelope {
	if key == "" {
		key = currentKey
	}
	return &Envelope{
		key: key,
		legacyKeys: []string{
			sha256Hex(defaultKeySource),
			legacyStaticKey,
		},
	}
}

// Encode turns plaintext into the storable salted-cipher string. Salted, so
// two calls on the same input differ; both round-trip. Empty input is the
// caller's responsibility to avoid.
func (e *Envelope) Encode(plaintext string) string {
	out, err := opensslEncrypt(plaintext, e.key)
	if err != nil {
		// Entropy failure; fall back to the tagged plaintext wrapper rather
		// than losing the message.
		return fallbackPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext))
	}
	return out
}

// Decode reverses Encode and every legacy format, in strict priority order,
// stopping at the first success.
func (e *Envelope) Decode(stored string) string {
	// 1. Empty input.
	if stored == "" {
		metrics.ObserveEnvelopeDecode("empty")
		return Placeholder
	}

	// 2. Explicit fallback tag: base64-wrapped plaintext.
	if strings.HasPrefix(stored, fallbackPrefix) {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, fallbackPrefix))
		if err != nil {
			metrics.ObserveEnvelopeDecode("fallback_invalid")
			return Placeholder
		}
		metrics.ObserveEnvelopeDecode("fallback_tag")
		return string(raw)
	}

	// 3. Legacy unencrypted rows: no cipher marker, not base64-looking, short.
	if !strings.HasPrefix(stored, saltedMarker) &&
		!(looksLikeBase64(stored) && len(stored) >= base64MinLen) &&
		len(stored) < plaintextMaxLen {
		metrics.ObserveEnvelopeDecode("plaintext_passthrough")
		return stored
	}

	// 4. Primary cipher with the current key.
	if pt, err := opensslDecrypt(stored, e.key); err == nil && cleanPlaintext(pt) {
		metrics.ObserveEnvelopeDecode("primary_key")
		return pt
	}

	// 5. Legacy key sweep, ending with the ciphertext-derived key.
	candidates := append([]string{}, e.legacyKeys...)
	if len(stored) >= 32 {
		candidates = append(candidates, stored[:32])
	}
	for _, k := range candidates {
		if pt, err := opensslDecrypt(stored, k); err == nil && cleanPlaintext(pt) {
			metrics.ObserveEnvelopeDecode("legacy_key")
			return pt
		}
	}

	// 6. Bare base64 wrapper: marker-prefixed plaintext or a JSON object.
	if raw, err := base64.StdEncoding.DecodeString(stored); err == nil {
		s := string(raw)
		if strings.HasPrefix(s, unencryptedMarker) {
			metrics.ObserveEnvelopeDecode("unencrypted_marker")
			return strings.TrimPrefix(s, unencryptedMarker)
		}
		if strings.HasPrefix(strings.TrimSpace(s), "{") && json.Valid(raw) {
			metrics.ObserveEnvelopeDecode("json_recovery")
			return s
		}
	}

	// 7. Nothing matched.
	metrics.ObserveEnvelopeDecode("placeholder")
	return Placeholder
}

func looksLikeBase64(s string) bool {
	return len(s)%4 == 0 && base64Pattern.MatchString(s)
}

// cleanPlaintext rejects decrypts that "succeeded" under the wrong key:
// empty output or output containing replacement/invalid runes.
func cleanPlaintext(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	return !strings.ContainsRune(s, utf8.RuneError)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ---- OpenSSL EVP_BytesToKey compatible AES-256-CBC ----
//
// Format: base64("Salted__" || 8-byte salt || ciphertext), key+IV derived
// from the passphrase with the MD5-based EVP KDF. This matches what the
// historical client wrote, so it is the one true wire format here.

const opensslSaltHeader = "Salted__"

func evpBytesToKey(passphrase string, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var prev []byte
	material := make([]byte, 0, keyLen+ivLen)
	for len(material) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(passphrase))
		h.Write(salt)
		prev = h.Sum(nil)
		material = append(material, prev...)
	}
	return material[:keyLen], material[keyLen : keyLen+ivLen]
}

func opensslEncrypt(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("rand salt: %w", err)
	}
	key, iv := evpBytesToKey(passphrase, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	out := make([]byte, 0, len(opensslSaltHeader)+8+len(ct))
	out = append(out, opensslSaltHeader...)
	out = append(out, salt...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func opensslDecrypt(stored, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(raw) < len(opensslSaltHeader)+8+aes.BlockSize || string(raw[:8]) != opensslSaltHeader {
		return "", errors.New("not a salted cipher payload")
	}
	salt := raw[8:16]
	ct := raw[16:]
	if len(ct)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext not block aligned")
	}
	key, iv := evpBytesToKey(passphrase, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	unpadded, err := pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
