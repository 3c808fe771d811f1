package store

import "fmt"

// DeadEndEntry records a patch proposal that was previously rejected, keyed
// by its deterministic code hash so the evolution pipeline never re-runs
// red-team review on a hash it has already killed.
type DeadEndEntry struct {
	CodeHash    string `json:"code_hash"`
	Reason      string `json:"reason"`
	TimestampMs int64  `json:"timestamp_ms"`
}

const deadEndPrefix = "dead_end_index/"

func deadEndKey(hash string) string { return deadEndPrefix + hash }

func (s *Store) RecordDeadEnd(e DeadEndEntry) error {
	return InsertJSON(s, SlotSoma, deadEndKey(e.CodeHash), e)
}

// CheckDeadEnd reports whether hash has previously been rejected.
func (s *Store) CheckDeadEnd(hash string) (DeadEndEntry, bool, error) {
	var e DeadEndEntry
	err := GetJSON(s, SlotSoma, deadEndKey(hash), &e)
	if err == ErrNotFound {
		return DeadEndEntry{}, false, nil
	}
	if err != nil {
		return DeadEndEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) ListDeadEnds() ([]DeadEndEntry, error) {
	kvs, err := s.ScanPrefix(SlotSoma, deadEndPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]DeadEndEntry, 0, len(kvs))
	for _, kv := range kvs {
		var e DeadEndEntry
		if err := unmarshalKV(kv, &e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// VersionedPatch is a single revision of a skill's source, persisted under
// KB-08 `versions/{skill}/{timestamp}` so Rollback can find the active
// version at or before a target time.
type VersionedPatch struct {
	Skill       string `json:"skill"`
	TimestampMs int64  `json:"timestamp_ms"`
	Code        string `json:"code"`
	Status      string `json:"status"` // applied|superseded|rolled_back
	IsActive    bool   `json:"is_active"`
	Reason      string `json:"reason,omitempty"`
}

func versionKey(skill string, ts int64) string {
	return fmt.Sprintf("versions/%s/%020d", skill, ts)
}

func (s *Store) PutVersion(v VersionedPatch) error {
	return InsertJSON(s, SlotSoma, versionKey(v.Skill, v.TimestampMs), v)
}

func (s *Store) ListVersions(skill string) ([]VersionedPatch, error) {
	kvs, err := s.ScanPrefix(SlotSoma, fmt.Sprintf("versions/%s/", skill))
	if err != nil {
		return nil, err
	}
	out := make([]VersionedPatch, 0, len(kvs))
	for _, kv := range kvs {
		var v VersionedPatch
		if err := unmarshalKV(kv, &v); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}
