package store

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EventRecord is a Chronos/Soma audit-trail entry. Source/Message pairs are
// append-only; Outcome is set after the fact by the recording call site.
type EventRecord struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Source      string `json:"source"`
	Message     string `json:"message"`
	Outcome     string `json:"outcome,omitempty"`
}

func NewEventRecord(nowMs int64, source, message string) EventRecord {
	return EventRecord{TimestampMs: nowMs, Source: source, Message: message}
}

func (e EventRecord) WithOutcome(outcome string) EventRecord {
	e.Outcome = outcome
	return e
}

func chronosKey(nowMs int64, source string) string {
	return fmt.Sprintf("event/%020d_%s", nowMs, source)
}

// AppendChronosEvent writes an EventRecord into KB-04 under a timestamp-
// ordered key so ScanPrefix("event/") naturally yields chronological order.
func (s *Store) AppendChronosEvent(e EventRecord) error {
	return InsertJSON(s, SlotChronos, chronosKey(e.TimestampMs, e.Source), e)
}

// GetRecentChronosEvents returns up to limit most-recent events, newest
// first.
func (s *Store) GetRecentChronosEvents(limit int) ([]EventRecord, error) {
	kvs, err := s.ScanPrefix(SlotChronos, "event/")
	if err != nil {
		return nil, err
	}
	events := make([]EventRecord, 0, len(kvs))
	for _, kv := range kvs {
		var e EventRecord
		if err := unmarshalKV(kv, &e); err == nil {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].TimestampMs > events[j].TimestampMs })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// AbsurdityLogPrefix is the KB-08 key prefix for anomaly/success metrics
// surfaced to the operator, ported verbatim from kb_router.rs.
const AbsurdityLogPrefix = "absurdity_log/"

// RecordSuccessMetric logs a labeled outcome (e.g. "Failed Leak Attempt")
// into KB-08 for sovereign oversight.
func (s *Store) RecordSuccessMetric(nowMs int64, label, detail string) error {
	key := fmt.Sprintf("%s%020d_%s", AbsurdityLogPrefix, nowMs, sanitizeKeyPart(label))
	rec := NewEventRecord(nowMs, label, detail)
	return InsertJSON(s, SlotSoma, key, rec)
}

// GetAbsurdityLogSummary returns all success-metric events recorded so far.
func (s *Store) GetAbsurdityLogSummary() ([]EventRecord, error) {
	kvs, err := s.ScanPrefix(SlotSoma, AbsurdityLogPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]EventRecord, 0, len(kvs))
	for _, kv := range kvs {
		var e EventRecord
		if err := unmarshalKV(kv, &e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// LogConnectionAnomaly records a vector-store (or other collaborator)
// failure into KB-08, ported from kb_router.rs's log_connection_anomaly.
func (s *Store) LogConnectionAnomaly(nowMs int64, source, message string) error {
	key := fmt.Sprintf("%svectorkb_%d", AbsurdityLogPrefix, nowMs)
	return InsertJSON(s, SlotSoma, key, NewEventRecord(nowMs, source, message).WithOutcome("fallback_to_local"))
}

// PersonRecord is a KB-07 relationship entry feeding the mental-state
// governor's trust/attachment weighting.
type PersonRecord struct {
	Name            string  `json:"name"`
	TrustScore      float32 `json:"trust_score"` // 0.0-1.0
	AttachmentStyle string  `json:"attachment_style"` // secure|anxious|avoidant|disorganized
	Relationship    string  `json:"relationship,omitempty"`
}

func personKey(name string) string { return "person/" + sanitizeKeyPart(name) }

// clampUnit confines a [0,1]-ranged field to its bounds, the same way
// vault.NewEmotionalAnchor clamps intensity on construction. Applied on
// write to trust_score (SetPerson) and tone_weight (SetEthosPolicy);
// grace_multiplier is a governor output above 1.0 and is not clamped here.
func clampUnit(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (s *Store) SetPerson(p PersonRecord) error {
	p.TrustScore = clampUnit(p.TrustScore)
	return InsertJSON(s, SlotPeople, personKey(p.Name), p)
}

func (s *Store) GetPerson(name string) (PersonRecord, error) {
	var p PersonRecord
	err := GetJSON(s, SlotPeople, personKey(name), &p)
	return p, err
}

func (s *Store) ListPeople() ([]PersonRecord, error) {
	kvs, err := s.ScanPrefix(SlotPeople, "person/")
	if err != nil {
		return nil, err
	}
	out := make([]PersonRecord, 0, len(kvs))
	for _, kv := range kvs {
		var p PersonRecord
		if err := unmarshalKV(kv, &p); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// PolicyRecord is KB-06's safety policy gate, consulted by the runtime
// before every skill dispatch. Distinct from EthosPolicy below, which is
// the philosophical/tone lens rather than a hard firewall.
type PolicyRecord struct {
	ForbiddenActions []string `json:"forbidden_actions"`
	RequiredTone     string   `json:"required_tone,omitempty"`
}

// Allows reports whether action is permitted under this policy. A nil/zero
// policy permits everything — an unconfigured Ethos layer is not a firewall.
func (p PolicyRecord) Allows(action string) bool {
	for _, f := range p.ForbiddenActions {
		if strings.EqualFold(f, action) {
			return false
		}
	}
	return true
}

const safetyPolicyKey = "safety_policy"

func (s *Store) SetSafetyPolicy(p PolicyRecord) error {
	return InsertJSON(s, SlotEthos, safetyPolicyKey, p)
}

func (s *Store) GetSafetyPolicy() (PolicyRecord, error) {
	var p PolicyRecord
	err := GetJSON(s, SlotEthos, safetyPolicyKey, &p)
	if err != nil {
		return PolicyRecord{}, nil
	}
	return p, nil
}

// EthosPolicy is KB-06's philosophical-lens record (§3): the school the
// user has switched the AGI's reframing/advisory tone to, ported from
// ethos_sync.rs's EthosSync skill. Stored under `ethos/current`, distinct
// from the safety PolicyRecord above.
type EthosPolicy struct {
	ActiveSchool string   `json:"active_school"`
	CoreMaxims   []string `json:"core_maxims"`
	ToneWeight   float32  `json:"tone_weight"` // 0.0-1.0, clamped on every write
}

// Recognized EthosPolicy.ActiveSchool presets (§3); any other name with
// non-empty CoreMaxims is accepted as a custom school.
const (
	EthosStoic                = "Stoic"
	EthosGrowthMindset         = "Growth-Mindset"
	EthosCompassionateWitness = "Compassionate-Witness"
	EthosTaoist               = "Taoist"
	EthosExistentialist       = "Existentialist"
)

// EthosPreset returns the built-in philosophical policy for a named school,
// and ok=false for anything unrecognized (the caller then falls back to a
// custom policy built from user-supplied core_maxims), mirroring
// EthosPolicy::preset in ethos_sync.rs.
func EthosPreset(school string) (EthosPolicy, bool) {
	switch school {
	case EthosStoic:
		return EthosPolicy{
			ActiveSchool: EthosStoic,
			CoreMaxims: []string{
				"Dichotomy of Control: you control your judgments and responses, not external events.",
				"Endure what you cannot change; act decisively on what you can control.",
				"A setback is an opportunity to practice a virtue, not a verdict on your worth.",
			},
			ToneWeight: 0.8,
		}, true
	case EthosGrowthMindset:
		return EthosPolicy{
			ActiveSchool: EthosGrowthMindset,
			CoreMaxims: []string{
				"Ability grows through effort and practice; it is not fixed at birth.",
				"Treat a challenge as a growth opportunity, not a threat.",
				"Failure is data about the attempt, not the person.",
			},
			ToneWeight: 0.8,
		}, true
	case EthosCompassionateWitness:
		return EthosPolicy{
			ActiveSchool: EthosCompassionateWitness,
			CoreMaxims: []string{
				"Witness the user's experience with compassion before offering solutions.",
				"Reflect feelings and needs (NVC) before advice.",
				"Hold space without judgment; rushing to fix can feel dismissive.",
			},
			ToneWeight: 0.8,
		}, true
	case EthosTaoist:
		return EthosPolicy{
			ActiveSchool: EthosTaoist,
			CoreMaxims: []string{
				"Wu-wei: act through the path of least resistance, not force.",
				"Flow with circumstance rather than fighting it.",
				"The softest things overcome the hardest; yield where yielding serves the goal.",
			},
			ToneWeight: 0.8,
		}, true
	case EthosExistentialist:
		return EthosPolicy{
			ActiveSchool: EthosExistentialist,
			CoreMaxims: []string{
				"Existence precedes essence: the user defines themself through their choices.",
				"Radical freedom comes with radical responsibility for one's own meaning.",
				"Anxiety about choice is the price of genuine freedom, not a malfunction.",
			},
			ToneWeight: 0.8,
		}, true
	default:
		return EthosPolicy{}, false
	}
}

// ToSystemInstruction renders the policy as the system-prompt block other
// skills (ReflectShadow, EthosSync) prepend ahead of a turn.
func (p EthosPolicy) ToSystemInstruction() string {
	if p.ActiveSchool == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Philosophical lens: %s (tone_weight=%.1f).", p.ActiveSchool, p.ToneWeight)
	if len(p.CoreMaxims) > 0 {
		b.WriteString(" Core maxims:")
		for i, m := range p.CoreMaxims {
			fmt.Fprintf(&b, "\n%d. %s", i+1, m)
		}
	}
	return b.String()
}

const ethosPhilosophicalKey = "ethos/current"

// SetEthosPolicy clamps tone_weight and persists the philosophical policy
// to KB-06 `ethos/current`.
func (s *Store) SetEthosPolicy(p EthosPolicy) error {
	p.ToneWeight = clampUnit(p.ToneWeight)
	return InsertJSON(s, SlotEthos, ethosPhilosophicalKey, p)
}

// GetEthosPhilosophicalPolicy reads the philosophical policy back. An
// unconfigured store returns a zero-value policy, not an error.
func (s *Store) GetEthosPhilosophicalPolicy() (EthosPolicy, error) {
	var p EthosPolicy
	if err := GetJSON(s, SlotEthos, ethosPhilosophicalKey, &p); err != nil {
		return EthosPolicy{}, nil
	}
	return p, nil
}

// ArchetypeProfile is KB-01: the user's birth-chart archetype/tone profile
// that the orchestrator's astro-logic triggers read to shape every
// response. This is a separate, additional record from the governor's
// derived MentalState (see mentalstate.go) — onboarding calls it the
// user's "birth chart".
type ArchetypeProfile struct {
	Archetype        string   `json:"archetype,omitempty"` // e.g. "pisces", raw "Sun/Moon/Rising"
	TonePreference   string   `json:"tone_preference,omitempty"`
	EnergyDrains     []string `json:"energy_drains,omitempty"`
	SovereigntyLeaks string   `json:"sovereignty_leaks,omitempty"` // comma/semicolon/newline separated
}

const archetypeProfileKey = "user_profile"

func (s *Store) SetArchetypeProfile(r ArchetypeProfile) error {
	return InsertJSON(s, SlotMentalState, archetypeProfileKey, r)
}

func (s *Store) GetArchetypeProfile() (ArchetypeProfile, error) {
	var r ArchetypeProfile
	err := GetJSON(s, SlotMentalState, archetypeProfileKey, &r)
	if err != nil {
		return ArchetypeProfile{}, nil
	}
	return r, nil
}

// AgentMessage is a single inbox entry under KB-08 `inbox/{agent_id}/...`,
// kept in FIFO order by timestamp-then-uuid key so bolt's natural
// lexicographic ordering is the delivery order.
type AgentMessage struct {
	AgentID     string `json:"agent_id"`
	Body        string `json:"body"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func inboxKey(agentID string, nowMs int64, uuid string) string {
	return fmt.Sprintf("inbox/%s/%020d_%s", agentID, nowMs, uuid)
}

func (s *Store) PushAgentMessage(agentID, uuid string, nowMs int64, body string) error {
	msg := AgentMessage{AgentID: agentID, Body: body, TimestampMs: nowMs}
	return InsertJSON(s, SlotSoma, inboxKey(agentID, nowMs, uuid), msg)
}

// GetAgentMessages pops up to limit oldest messages for agentID (FIFO) and
// removes them from the inbox.
func (s *Store) GetAgentMessages(agentID string, limit int) ([]AgentMessage, error) {
	kvs, err := s.ScanPrefix(SlotSoma, fmt.Sprintf("inbox/%s/", agentID))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(kvs) > limit {
		kvs = kvs[:limit]
	}
	out := make([]AgentMessage, 0, len(kvs))
	for _, kv := range kvs {
		var m AgentMessage
		if err := unmarshalKV(kv, &m); err == nil {
			out = append(out, m)
		}
		if err := s.Delete(SlotSoma, kv.Key); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListInboxAgentIDs scans KB-08 `inbox/{agent_id}/...` keys to discover
// which agents currently have pending mail, ported from the daemon's
// tick() agent-discovery step.
func (s *Store) ListInboxAgentIDs() ([]string, error) {
	keys, err := s.ScanKeys(SlotSoma, "inbox/")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, "inbox/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			continue
		}
		if !seen[parts[0]] {
			seen[parts[0]] = true
			ids = append(ids, parts[0])
		}
	}
	return ids, nil
}

func backgroundTaskKey(agentID string) string { return "pneuma/" + agentID + "/background_task" }

// GetBackgroundTask reads the Pneuma background-task key from KB-01, per
// §4.7 step 3.
func (s *Store) GetBackgroundTask(agentID string) (string, bool) {
	data, err := s.Get(SlotMentalState, backgroundTaskKey(agentID))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// SetBackgroundTask writes the Pneuma background-task key for agentID.
func (s *Store) SetBackgroundTask(agentID, task string) error {
	return s.Insert(SlotMentalState, backgroundTaskKey(agentID), []byte(task))
}

// GovernedTask is a KB-02 task-queue entry dispatched through the
// orchestrator/runtime pipeline.
type GovernedTask struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // pending|active|done|failed
	CreatedAt   time.Time `json:"created_at"`
}

func taskKey(id string) string { return "task/" + id }

func (s *Store) SetTask(t GovernedTask) error {
	return InsertJSON(s, SlotTasks, taskKey(t.ID), t)
}

func (s *Store) GetTask(id string) (GovernedTask, error) {
	var t GovernedTask
	err := GetJSON(s, SlotTasks, taskKey(id), &t)
	return t, err
}

func (s *Store) ListTasks() ([]GovernedTask, error) {
	kvs, err := s.ScanPrefix(SlotTasks, "task/")
	if err != nil {
		return nil, err
	}
	out := make([]GovernedTask, 0, len(kvs))
	for _, kv := range kvs {
		var t GovernedTask
		if err := unmarshalKV(kv, &t); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func unmarshalKV(kv KV, out interface{}) error {
	return unmarshalJSON(kv.Value, out)
}

func sanitizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
