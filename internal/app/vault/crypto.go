// Package vault implements the per-workspace credential vault: HKDF-SHA256
// workspace key derivation, AES-256-GCM encryption with write-verify, and
// masked read paths. Grounded on infrastructure/crypto/envelope.go's
// nonce-prefixed AES-GCM shape and internal/app/services/secrets's
// Create/Update/Get/List/Delete service surface, with the teacher's
// HMAC-based key derivation replaced by HKDF per this module's requirement.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/enrichlayer/core/internal/app/apierr"
)

const masterKeyLen = 32

// MasterKey is the root secret every workspace key is derived from. It must
// be exactly 32 bytes, matching spec 4.3's construction precondition.
type MasterKey [masterKeyLen]byte

// NewMasterKey validates raw and wraps it as a MasterKey.
func NewMasterKey(raw []byte) (MasterKey, error) {
	var mk MasterKey
	if len(raw) != masterKeyLen {
		return mk, apierr.Validation("master key must be exactly %d bytes, got %d", masterKeyLen, len(raw))
	}
	copy(mk[:], raw)
	return mk, nil
}

// deriveWorkspaceKey implements HKDF-SHA256(masterKey, salt=SHA256(workspaceId),
// info=workspaceId, length=32).
func deriveWorkspaceKey(mk MasterKey, workspaceID string) ([]byte, error) {
	salt := sha256.Sum256([]byte(workspaceID))
	r := hkdf.New(sha256.New, mk[:], salt[:], []byte(workspaceID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, apierr.Internal(fmt.Errorf("derive workspace key: %w", err))
	}
	return key, nil
}

// encrypted is the three base64 components spec 4.3's encrypt returns.
type encrypted struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// encryptWithVerify implements spec 4.3's encrypt, including the
// write-verify step: it decrypts its own output immediately and compares
// against plaintext before returning, per "mismatch is a fatal internal
// error."
func encryptWithVerify(plaintext string, key []byte) (encrypted, error) {
	enc, err := encryptOnce(plaintext, key)
	if err != nil {
		return encrypted{}, err
	}
	verify, err := decrypt(enc, key)
	if err != nil {
		return encrypted{}, apierr.Internal(fmt.Errorf("write-verify decrypt failed: %w", err))
	}
	if verify != plaintext {
		return encrypted{}, apierr.Internal(fmt.Errorf("write-verify mismatch"))
	}
	return enc, nil
}

func encryptOnce(plaintext string, key []byte) (encrypted, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return encrypted{}, apierr.Internal(fmt.Errorf("new cipher: %w", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return encrypted{}, apierr.Internal(fmt.Errorf("new gcm: %w", err))
	}
	iv := make([]byte, gcm.NonceSize()) // 12 bytes
	if _, err := rand.Read(iv); err != nil {
		return encrypted{}, apierr.Internal(fmt.Errorf("read iv: %w", err))
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext := sealed[:tagStart]
	authTag := sealed[tagStart:]
	return encrypted{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(authTag),
	}, nil
}

// decrypt implements spec 4.3's decrypt, failing when authTag mismatches.
func decrypt(enc encrypted, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("decode ciphertext: %w", err))
	}
	iv, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("decode iv: %w", err))
	}
	tag, err := base64.StdEncoding.DecodeString(enc.AuthTag)
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("decode auth tag: %w", err))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("new cipher: %w", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("new gcm: %w", err))
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", apierr.New(apierr.CodeInternal, "authentication tag mismatch")
	}
	return string(plaintext), nil
}

// packSecret encodes the secret row's self-contained IV/tag/ciphertext
// triple per spec 4.3: "base64(iv):base64(tag):base64(ct)".
func packSecret(enc encrypted) string {
	return enc.IV + ":" + enc.AuthTag + ":" + enc.Ciphertext
}

func unpackSecret(packed string) (encrypted, error) {
	parts := splitPacked(packed)
	if len(parts) != 3 {
		return encrypted{}, apierr.Internal(fmt.Errorf("malformed packed secret"))
	}
	return encrypted{IV: parts[0], AuthTag: parts[1], Ciphertext: parts[2]}, nil
}

func splitPacked(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Mask implements spec 4.3's masking rule: strings of length <= 4 pass
// through unchanged; longer strings become "****" + the last 4 characters.
func Mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	return "****" + s[len(s)-4:]
}
