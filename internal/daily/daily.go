// Package daily implements the Morning Briefing and Evening Audit hooks
// that bracket a day's interaction: a short energy-aware greeting that
// bridges the astro-weather transit with KB-01 energy drains, and a
// once-a-day reflective prompt whose response is logged to KB-08 for
// weekly synthesis.
package daily

import (
	"encoding/json"
	"strings"
	"time"

	"pagi/internal/astro"
	"pagi/internal/store"
)

// DailyCheckinLastDateKey is where the last morning-briefing date lives
// in KB-08, so the briefing fires only once per day.
const DailyCheckinLastDateKey = "daily_checkin/last_date"

var pressureKeywords = []string{
	"pressure", "over-commit", "saying no", "people pleas",
	"burnout", "boundary", "irritab", "tension", "stress",
}

// GenerateMorningBriefing combines the astro-weather transit state with
// KB-01 "energy_drains" into a 1-2 sentence morning tip. lowSleep appends
// a Vitality Shield note when the caller's sleep-tracking integration
// reports a short night.
func GenerateMorningBriefing(profile map[string]interface{}, state astro.State, lowSleep bool) string {
	suffix := ""
	if lowSleep {
		suffix = " I notice your sleep was low. I'll stay brief today to save your energy. "
	}

	if profile == nil {
		if state.Risk.IsHighRisk() {
			return "Good morning. Today's environment may bring more tension than usual. Keep your boundaries firm." + suffix
		}
		return "Good morning. No particular energy alerts today." + suffix
	}

	drains := stringSliceField(profile, "energy_drains")
	hasHighRisk := state.Risk.IsHighRisk()
	elevated := state.Risk == astro.RiskElevated

	if !hasHighRisk && !elevated {
		if suffix == "" {
			return "Good morning. No particular energy alerts today. "
		}
		return "Good morning." + suffix
	}

	transitLower := strings.ToLower(state.TransitSummary)
	adviceLower := strings.ToLower(state.Advice)

	drainMatchesPressure := false
	for _, drain := range drains {
		for _, kw := range pressureKeywords {
			if strings.Contains(drain, kw) || strings.Contains(kw, drain) {
				drainMatchesPressure = true
				break
			}
		}
	}
	transitSuggestsPressure := false
	for _, kw := range pressureKeywords {
		if strings.Contains(transitLower, kw) || strings.Contains(adviceLower, kw) {
			transitSuggestsPressure = true
			break
		}
	}

	if drainMatchesPressure || transitSuggestsPressure || hasHighRisk {
		return "Good morning. Before we dive in: today's environment might make you feel a bit more pressured to over-commit. Keep your boundaries firm today." + suffix
	}

	base := "Good morning. A gentle heads-up: you might feel a bit more stretched today. Protect your energy. "
	if hasHighRisk {
		base = "Good morning. Today may bring more tension than usual; go easy on yourself and hold your boundaries. "
	}
	return base + suffix
}

// RecordMorningBriefingShown persists today's date so the briefing fires
// only once per day.
func RecordMorningBriefingShown(st *store.Store, today string) error {
	return st.Insert(store.SlotSoma, DailyCheckinLastDateKey, []byte(today))
}

// --- Evening audit ---

const (
	eveningAuditPromptShownKey = "evening_audit/prompt_shown_date"
	eveningAuditLastDateKey    = "evening_audit/last_date"
	eveningAuditByDatePrefix   = "evening_audit/by_date/"
)

type AuditStatus string

const (
	AuditSuccess   AuditStatus = "success"
	AuditChallenge AuditStatus = "challenge"
)

type auditEntry struct {
	Date        string `json:"date"`
	Status      string `json:"status"`
	Lesson      string `json:"lesson"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// GetEveningAuditPrompt returns a reflective closing question if it's
// past auditStartHour UTC and neither the prompt nor a response has
// already landed today, or "" if none is due.
func GetEveningAuditPrompt(st *store.Store, profile map[string]interface{}, today string, currentHourUTC, auditStartHour int, enabled bool) string {
	if !enabled || currentHourUTC < auditStartHour {
		return ""
	}

	promptShown, _ := st.Get(store.SlotSoma, eveningAuditPromptShownKey)
	if string(promptShown) == today {
		return ""
	}
	lastDate, _ := st.Get(store.SlotSoma, eveningAuditLastDateKey)
	if string(lastDate) == today {
		return ""
	}

	focus := eveningFocusFromProfile(profile)
	if focus == "" {
		return "Before we wrap: did you manage to protect your energy today? What did we learn?"
	}
	return "Earlier we talked about " + focus + "—how did that go today? What did we learn?"
}

// MarkEveningAuditPromptShown records today's date so the prompt isn't
// repeated.
func MarkEveningAuditPromptShown(st *store.Store, today string) error {
	return st.Insert(store.SlotSoma, eveningAuditPromptShownKey, []byte(today))
}

// RecordEveningAudit logs the user's reflective response for date, and
// marks that date as the last completed audit.
func RecordEveningAudit(st *store.Store, date string, status AuditStatus, lesson string) error {
	entry := auditEntry{Date: date, Status: string(status), Lesson: lesson, TimestampMs: time.Now().UnixMilli()}
	if err := store.InsertJSON(st, store.SlotSoma, eveningAuditByDatePrefix+date, entry); err != nil {
		return err
	}
	return st.Insert(store.SlotSoma, eveningAuditLastDateKey, []byte(date))
}

// AuditEntrySummary is a (date, status, lesson) tuple for weekly synthesis.
type AuditEntrySummary struct {
	Date   string
	Status string
	Lesson string
}

// GetLast7Audits reads the evening audit log, sorted ascending by date
// and filtered to the trailing 7 days relative to today (YYYY-MM-DD).
func GetLast7Audits(st *store.Store, today string) ([]AuditEntrySummary, error) {
	kvs, err := st.ScanPrefix(store.SlotSoma, eveningAuditByDatePrefix)
	if err != nil {
		return nil, err
	}
	cutoff := cutoffDate(today, 7)

	out := make([]AuditEntrySummary, 0, len(kvs))
	for _, kv := range kvs {
		var e auditEntry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			continue
		}
		if e.Date < cutoff {
			continue
		}
		out = append(out, AuditEntrySummary{Date: e.Date, Status: e.Status, Lesson: e.Lesson})
	}
	return out, nil
}

func cutoffDate(today string, days int) string {
	t, err := time.Parse("2006-01-02", today)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -days).Format("2006-01-02")
}

func eveningFocusFromProfile(profile map[string]interface{}) string {
	drains := stringSliceField(profile, "energy_drains")
	if len(drains) == 0 {
		return ""
	}
	if len(drains) == 1 {
		return "protecting your energy around " + drains[0]
	}
	return "staying firm on boundaries (e.g. " + drains[0] + ")"
}

func stringSliceField(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
