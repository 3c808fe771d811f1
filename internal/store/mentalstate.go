package store

import (
	"errors"
	"fmt"

	"pagi/internal/governor"
	"pagi/internal/vault"
)

// SomaState is a KB-08 biometric snapshot (§3) feeding the governor's
// burnout-risk computation and Supportive-Tone/BioGate grace override,
// ported from the original's SomaState in kardia_map_test.rs.
type SomaState struct {
	SleepHours     float32 `json:"sleep_hours"`
	RestingHR      float32 `json:"resting_hr"`
	HRV            float32 `json:"hrv"`
	ReadinessScore float32 `json:"readiness_score"`
}

const somaCurrentKey = "soma/current"

func somaBalanceCheckKey(nowMs int64) string {
	return fmt.Sprintf("soma/balance_check/%020d", nowMs)
}

// SetSomaState persists soma as KB-08's current reading and appends it to
// the `soma/balance_check/{ts}` time series so history can be replayed.
func (s *Store) SetSomaState(nowMs int64, soma SomaState) error {
	if err := InsertJSON(s, SlotSoma, somaCurrentKey, soma); err != nil {
		return err
	}
	return InsertJSON(s, SlotSoma, somaBalanceCheckKey(nowMs), soma)
}

// GetSomaState returns the latest recorded biometric snapshot. An
// unconfigured store defaults to a well-rested reading rather than the
// zero value, since sleep_hours=0/readiness_score=0 would read as a
// maximal burnout signal the user never actually reported.
func (s *Store) GetSomaState() (SomaState, error) {
	var soma SomaState
	if err := GetJSON(s, SlotSoma, somaCurrentKey, &soma); err != nil {
		return SomaState{SleepHours: 8, RestingHR: 60, HRV: 50, ReadinessScore: 70}, nil
	}
	return soma, nil
}

// GetSomaBalanceHistory returns up to limit recorded balance-check
// snapshots, most recent first.
func (s *Store) GetSomaBalanceHistory(limit int) ([]SomaState, error) {
	kvs, err := s.ScanPrefix(SlotSoma, "soma/balance_check/")
	if err != nil {
		return nil, err
	}
	out := make([]SomaState, 0, len(kvs))
	for i := len(kvs) - 1; i >= 0; i-- {
		var soma SomaState
		if err := unmarshalKV(kvs[i], &soma); err == nil {
			out = append(out, soma)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func derivedMentalStateKey(agentID string) string {
	if agentID == "" {
		agentID = "default"
	}
	return "mental_state/" + agentID
}

// SetMentalState caches a derived governor.MentalState for agentID under
// KB-01, the §3 "persisted so collaborators can read without re-deriving"
// half of MentalState's lifecycle.
func (s *Store) SetMentalState(agentID string, ms governor.MentalState) error {
	return InsertJSON(s, SlotMentalState, derivedMentalStateKey(agentID), ms)
}

// toGovernorInput gathers the governor's raw inputs from the store: the
// latest Soma reading, every active Shadow-vault anchor, and known Kardia
// people. A locked vault degrades to an empty anchor list rather than
// failing outright — the governor can still reason from Soma and Kardia
// alone.
func (s *Store) toGovernorInput() (governor.Input, error) {
	soma, err := s.GetSomaState()
	if err != nil {
		return governor.Input{}, fmt.Errorf("get soma state: %w", err)
	}

	anchors, err := s.ListActiveShadowAnchors()
	if err != nil && !errors.Is(err, ErrLocked) {
		return governor.Input{}, fmt.Errorf("list active anchors: %w", err)
	}
	gAnchors := make([]governor.Anchor, 0, len(anchors))
	for _, a := range anchors {
		gAnchors = append(gAnchors, anchorToGovernor(a))
	}

	people, err := s.ListPeople()
	if err != nil {
		return governor.Input{}, fmt.Errorf("list people: %w", err)
	}
	gPeople := make([]governor.Relationship, 0, len(people))
	for _, p := range people {
		gPeople = append(gPeople, governor.Relationship{TrustScore: p.TrustScore, AttachmentStyle: p.AttachmentStyle})
	}

	return governor.Input{
		Soma:          governor.SomaState(soma),
		ActiveAnchors: gAnchors,
		People:        gPeople,
	}, nil
}

func anchorToGovernor(a vault.EmotionalAnchor) governor.Anchor {
	return governor.Anchor{AnchorType: a.AnchorType, Intensity: a.Intensity, Label: a.Label, Note: a.Note}
}

// CheckMentalLoad recomputes the governor's MentalState from the latest
// Soma reading, active Shadow anchors, and known Kardia people, without
// caching the result. It is the cheap on-demand read path (e.g. for a
// runtime pre-check deciding whether to throttle a task); collaborators
// that want the cached, persisted value should call
// GetEffectiveMentalState instead.
func (s *Store) CheckMentalLoad() (governor.MentalState, error) {
	in, err := s.toGovernorInput()
	if err != nil {
		return governor.MentalState{}, err
	}
	return governor.Evaluate(in), nil
}

// GetEffectiveMentalState recomputes MentalState (§4.3's Soma + active
// Shadow anchors + Kardia fusion), caches it under KB-01 for agentID, and
// returns it — the compute-then-persist path described in §3's MentalState
// lifecycle note.
func (s *Store) GetEffectiveMentalState(agentID string) (governor.MentalState, error) {
	ms, err := s.CheckMentalLoad()
	if err != nil {
		return governor.MentalState{}, err
	}
	if err := s.SetMentalState(agentID, ms); err != nil {
		return governor.MentalState{}, err
	}
	return ms, nil
}
