// Package store implements the Knowledge Store: nine ordered, embedded
// key-value slots (KB-01 .. KB-09) backed by go.etcd.io/bbolt. Each slot is
// a bolt bucket; keys are stored verbatim so their natural byte ordering is
// the record's logical ordering, and prefix/range scans walk a bolt.Cursor
// directly rather than loading then filtering.
//
// bbolt's exclusive file lock on Open gives single-writer-per-path
// enforcement for free: a second process attempting to open the same
// storage path blocks (or times out), never silently opens a second
// writable handle.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pagi/internal/logging"
	"pagi/internal/vault"

	"go.etcd.io/bbolt"
)

// Slot identifies one of the nine knowledge-base partitions.
type Slot int

const (
	SlotMentalState Slot = iota + 1 // KB-01: archetype, tone, user profile
	SlotTasks                       // KB-02: governed task queue
	SlotResearch                    // KB-03: Logos/research corpus (history-harvester consumer also)
	SlotChronos                     // KB-04: event log, topic index
	SlotSovereignty                 // KB-05: sovereignty leak triggers, subject ranks
	SlotEthos                       // KB-06: philosophical and safety policy
	SlotPeople                      // KB-07: known people / relationship records
	SlotSoma                        // KB-08: inbox, absurdity log, audits, dead-end index, versions
	SlotShadow                      // KB-09: vault-encrypted emotional anchors
)

func (s Slot) bucketName() []byte {
	return []byte(fmt.Sprintf("kb-%02d", int(s)))
}

var (
	ErrLocked    = errors.New("store: slot 9 is locked (vault has no key)")
	ErrBadSlot   = errors.New("store: unknown slot")
	ErrNotFound  = errors.New("store: key not found")
)

var log = logging.Get(logging.CategoryStore)

// Store is the single-writer embedded knowledge store.
type Store struct {
	db    *bbolt.DB
	v     *vault.Vault
	path  string
}

// Open opens (creating if necessary) the bolt database at path and ensures
// all nine slot buckets exist. v may be a locked vault; Slot 9 operations
// then fail with ErrLocked until a real key is supplied.
func Open(path string, v *vault.Vault) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db at %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for s := SlotMentalState; s <= SlotShadow; s++ {
			if _, err := tx.CreateBucketIfNotExists(s.bucketName()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init slot buckets: %w", err)
	}
	log.Infof("knowledge store opened at %s", path)
	return &Store{db: db, v: v}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes key/value into slot. Slot 9 is transparently encrypted
// through the vault; if the vault is locked, Insert returns ErrLocked
// without touching bolt.
func (s *Store) Insert(slot Slot, key string, value []byte) error {
	if slot == SlotShadow {
		if !s.v.IsUnlocked() {
			return ErrLocked
		}
		enc, err := s.v.EncryptBlob(value)
		if err != nil {
			return err
		}
		value = enc
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(slot.bucketName())
		if b == nil {
			return ErrBadSlot
		}
		return b.Put([]byte(key), value)
	})
}

// Get returns the raw stored bytes for key in slot. For Slot 9 this is the
// ciphertext (diagnostic path) — use GetShadowDecrypted for plaintext.
func (s *Store) Get(slot Slot, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(slot.bucketName())
		if b == nil {
			return ErrBadSlot
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// GetShadowDecrypted reads key from Slot 9 and decrypts it, returning a
// memory-locked buffer the caller must Close().
func (s *Store) GetShadowDecrypted(key string) (*vault.LockedBuffer, error) {
	if !s.v.IsUnlocked() {
		return nil, ErrLocked
	}
	raw, err := s.Get(SlotShadow, key)
	if err != nil {
		return nil, err
	}
	return s.v.DecryptBlob(raw)
}

// Delete removes key from slot.
func (s *Store) Delete(slot Slot, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(slot.bucketName())
		if b == nil {
			return ErrBadSlot
		}
		return b.Delete([]byte(key))
	})
}

// KV is a key/value pair returned from a scan.
type KV struct {
	Key   string
	Value []byte
}

// ScanPrefix walks slot's keys in order starting at prefix, returning every
// key that begins with prefix. Matches the O(matched + log n) requirement
// via bolt.Cursor.Seek rather than a full-bucket load.
func (s *Store) ScanPrefix(slot Slot, prefix string) ([]KV, error) {
	var out []KV
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(slot.bucketName())
		if b == nil {
			return ErrBadSlot
		}
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			out = append(out, KV{Key: string(k), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return out, err
}

// ScanRange walks slot's keys in [start, end) order.
func (s *Store) ScanRange(slot Slot, start, end string) ([]KV, error) {
	var out []KV
	lo, hi := []byte(start), []byte(end)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(slot.bucketName())
		if b == nil {
			return ErrBadSlot
		}
		c := b.Cursor()
		for k, v := c.Seek(lo); k != nil && bytes.Compare(k, hi) < 0; k, v = c.Next() {
			out = append(out, KV{Key: string(k), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return out, err
}

// ScanKeys returns just the keys matching prefix, cheaper than ScanPrefix
// when values are not needed (e.g. discovering agent IDs from inbox paths).
func (s *Store) ScanKeys(slot Slot, prefix string) ([]string, error) {
	kvs, err := s.ScanPrefix(slot, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys, nil
}

// InsertJSON marshals v to JSON and stores it, a convenience used by every
// typed record helper in this package.
func InsertJSON(s *Store, slot Slot, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.Insert(slot, key, data)
}

// GetJSON reads key from slot and unmarshals it into out.
func GetJSON(s *Store, slot Slot, key string, out interface{}) error {
	data, err := s.Get(slot, key)
	if err != nil {
		return err
	}
	return unmarshalJSON(data, out)
}

func unmarshalJSON(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}
