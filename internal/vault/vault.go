// Package vault implements AES-256-GCM envelope encryption for Slot 9
// (Shadow_KB). Sensitive emotional data — trauma markers, private journal
// entries, grief weight — is only ever decrypted in memory when a session
// key is provided; on disk it is unreadable ciphertext.
//
// Wire format: every encrypted blob is [12-byte nonce][ciphertext+tag].
// The nonce is generated fresh per write via crypto/rand.
//
// The master key comes from PAGI_SHADOW_KEY (64 hex chars = 32 bytes). If
// absent or malformed, the vault stays locked: every encrypt/decrypt call
// returns ErrLocked rather than touching Slot 9.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"pagi/internal/logging"

	"golang.org/x/sys/unix"
)

const nonceLen = 12

var (
	ErrLocked            = errors.New("shadow vault is locked (no master key provided)")
	ErrEncryptionFailed  = errors.New("shadow vault encryption failed")
	ErrDecryptionFailed  = errors.New("shadow vault decryption failed")
	ErrCorruptBlob       = errors.New("shadow vault: corrupt blob (too short)")
)

var log = logging.Get(logging.CategoryVault)

// EmotionalAnchor is a Slot-9 record: sensitive personal data. Never log
// its decrypted content.
type EmotionalAnchor struct {
	AnchorType  string  `json:"anchor_type"`
	Intensity   float32 `json:"intensity"`
	Active      bool    `json:"active"`
	Label       string  `json:"label,omitempty"`
	Note        string  `json:"note,omitempty"`
	TimestampMs int64   `json:"timestamp_ms"`
}

func NewEmotionalAnchor(anchorType string, intensity float32, nowMs int64) EmotionalAnchor {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	return EmotionalAnchor{
		AnchorType:  anchorType,
		Intensity:   intensity,
		Active:      true,
		TimestampMs: nowMs,
	}
}

func (a EmotionalAnchor) WithLabel(label string) EmotionalAnchor {
	a.Label = label
	return a
}

func (a EmotionalAnchor) WithNote(note string) EmotionalAnchor {
	a.Note = note
	return a
}

// LockedBuffer holds decrypted bytes in memory that should never reach
// swap. Close zeroes the buffer and releases any mlock.
type LockedBuffer struct {
	data   []byte
	locked bool
}

func newLockedBuffer(data []byte) *LockedBuffer {
	lb := &LockedBuffer{data: data}
	if err := unix.Mlock(data); err == nil {
		lb.locked = true
	}
	runtime.SetFinalizer(lb, func(l *LockedBuffer) { l.Close() })
	return lb
}

// Bytes returns the underlying plaintext. Valid until Close is called.
func (l *LockedBuffer) Bytes() []byte { return l.data }

// Close zeroes the buffer and unlocks it from memory.
func (l *LockedBuffer) Close() {
	if l == nil || l.data == nil {
		return
	}
	for i := range l.data {
		l.data[i] = 0
	}
	if l.locked {
		_ = unix.Munlock(l.data)
		l.locked = false
	}
	l.data = nil
	runtime.SetFinalizer(l, nil)
}

// Vault is the Secret Vault: an AES-256-GCM wrapper around Slot 9. A nil
// cipher means the vault is locked.
type Vault struct {
	gcm cipher.AEAD
}

// New constructs a vault from a 32-byte key. Pass nil for a locked vault.
func New(masterKey []byte) (*Vault, error) {
	if masterKey == nil {
		return &Vault{}, nil
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{gcm: gcm}, nil
}

// FromShadowKeyHex builds a vault from the PAGI_SHADOW_KEY env var's raw
// value (64 hex chars). A missing or malformed value yields a locked vault,
// never an error — Slot 9 simply becomes inaccessible.
func FromShadowKeyHex(hexKey string) *Vault {
	hexKey = strings.NewReplacer(" ", "", "\n", "").Replace(strings.TrimSpace(hexKey))
	if len(hexKey) != 64 {
		if hexKey != "" {
			log.Warn("PAGI_SHADOW_KEY must be 64 hex chars (32 bytes); Shadow Vault will be LOCKED")
		}
		v, _ := New(nil)
		return v
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		log.Warn("PAGI_SHADOW_KEY is not valid hex; Shadow Vault will be LOCKED")
		v, _ := New(nil)
		return v
	}
	v, err := New(key)
	if err != nil {
		log.Warn("PAGI_SHADOW_KEY failed to initialize cipher; Shadow Vault will be LOCKED")
		v, _ = New(nil)
		return v
	}
	log.Info("Shadow Vault unlocked — Slot 9 (Shadow_KB) is accessible")
	return v
}

// IsUnlocked reports whether the vault has a valid key.
func (v *Vault) IsUnlocked() bool { return v.gcm != nil }

// EncryptBlob encrypts data into [nonce || ciphertext+tag].
func (v *Vault) EncryptBlob(data []byte) ([]byte, error) {
	if v.gcm == nil {
		return nil, ErrLocked
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	ciphertext := v.gcm.Seal(nil, nonce, data, nil)
	out := make([]byte, 0, nonceLen+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptBlob decrypts a blob produced by EncryptBlob into a memory-locked
// buffer. Caller must Close() the result.
func (v *Vault) DecryptBlob(encrypted []byte) (*LockedBuffer, error) {
	if v.gcm == nil {
		return nil, ErrLocked
	}
	if len(encrypted) < nonceLen {
		return nil, ErrCorruptBlob
	}
	nonce, ct := encrypted[:nonceLen], encrypted[nonceLen:]
	plaintext, err := v.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return newLockedBuffer(plaintext), nil
}

// EncryptStr is a convenience wrapper over EncryptBlob for UTF-8 strings.
func (v *Vault) EncryptStr(data string) ([]byte, error) {
	return v.EncryptBlob([]byte(data))
}

// DecryptStr decrypts a blob back to a string, zeroing the intermediate
// locked buffer before returning.
func (v *Vault) DecryptStr(encrypted []byte) (string, error) {
	lb, err := v.DecryptBlob(encrypted)
	if err != nil {
		return "", err
	}
	defer lb.Close()
	return string(lb.Bytes()), nil
}

// EncryptAnchor encrypts an EmotionalAnchor for Slot 9 storage.
func (v *Vault) EncryptAnchor(a EmotionalAnchor) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal anchor: %w", err)
	}
	return v.EncryptBlob(data)
}

// DecryptAnchor decrypts an EmotionalAnchor from Slot 9 storage.
func (v *Vault) DecryptAnchor(encrypted []byte) (EmotionalAnchor, error) {
	lb, err := v.DecryptBlob(encrypted)
	if err != nil {
		return EmotionalAnchor{}, err
	}
	defer lb.Close()
	var a EmotionalAnchor
	if err := json.Unmarshal(lb.Bytes(), &a); err != nil {
		return EmotionalAnchor{}, fmt.Errorf("%w: failed to deserialize anchor: %v", ErrDecryptionFailed, err)
	}
	return a, nil
}
