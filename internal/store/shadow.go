package store

import (
	"encoding/json"
	"fmt"

	"pagi/internal/vault"
)

func shadowAnchorKey(label string) string { return "anchor/" + sanitizeKeyPart(label) }

// InsertShadowAnchor stores an EmotionalAnchor in Slot 9. Insert already
// applies the vault's Slot-9 encryption to every value written, so the
// anchor is marshaled to plain JSON here — encrypting it again before
// handing it to Insert would leave the stored blob double-encrypted and
// unreadable by the single-decrypt read path. Returns ErrLocked if the
// vault has no key.
func (s *Store) InsertShadowAnchor(a vault.EmotionalAnchor) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal anchor: %w", err)
	}
	return s.Insert(SlotShadow, shadowAnchorKey(a.Label), data)
}

// GetShadowAnchor decrypts and returns the anchor stored under label.
func (s *Store) GetShadowAnchor(label string) (vault.EmotionalAnchor, error) {
	raw, err := s.Get(SlotShadow, shadowAnchorKey(label))
	if err != nil {
		return vault.EmotionalAnchor{}, err
	}
	if !s.v.IsUnlocked() {
		return vault.EmotionalAnchor{}, ErrLocked
	}
	return s.v.DecryptAnchor(raw)
}

// ListActiveShadowAnchors decrypts and returns every active anchor. Returns
// ErrLocked immediately if the vault cannot decrypt.
func (s *Store) ListActiveShadowAnchors() ([]vault.EmotionalAnchor, error) {
	if !s.v.IsUnlocked() {
		return nil, ErrLocked
	}
	kvs, err := s.ScanPrefix(SlotShadow, "anchor/")
	if err != nil {
		return nil, err
	}
	out := make([]vault.EmotionalAnchor, 0, len(kvs))
	for _, kv := range kvs {
		a, err := s.v.DecryptAnchor(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("decrypt anchor %s: %w", kv.Key, err)
		}
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}
