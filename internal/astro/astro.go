// Package astro implements the Astro-Weather planetary-transit correlator:
// a deterministic, dependency-free simulation comparing today's "Mars"
// position against the user's birth chart (KB-01 Sun/Moon/Rising) to flag
// harsh aspects that correlate with irritability and sovereignty leaks.
// No ephemeris API, no network — every function here is pure and
// reproducible from a timestamp and a user chart.
package astro

import (
	"fmt"
	"strings"
	"time"
)

// TransitRiskLevel is today's risk relative to the user's chart.
type TransitRiskLevel string

const (
	RiskStable   TransitRiskLevel = "stable"
	RiskElevated TransitRiskLevel = "elevated"
	RiskHighRisk TransitRiskLevel = "high_risk"
)

func (r TransitRiskLevel) IsHighRisk() bool { return r == RiskHighRisk }

// State is the cached astro-weather result for SYSTEM_PROMPT injection.
type State struct {
	Risk           TransitRiskLevel `json:"risk"`
	TransitSummary string           `json:"transit_summary"`
	Advice         string           `json:"advice"`
	UpdatedAtMs    int64            `json:"updated_at_ms"`
}

func DefaultState() State {
	return State{
		Risk:           RiskStable,
		TransitSummary: "No transit data",
		Advice:         "Standard boundary awareness.",
	}
}

var signOrder = []string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

// signIndex returns 0 (Aries) through 11 (Pisces), or -1 if unrecognized.
func signIndex(sign string) int {
	s := strings.ToLower(strings.TrimSpace(sign))
	for i, name := range signOrder {
		if name == s {
			return i
		}
	}
	return -1
}

// aspectDistance is the circular distance in signs between a and b, 0-6.
func aspectDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d <= 6 {
		return d
	}
	return 12 - d
}

// isHarshAspect: square (3) and opposition (6) are harsh; conjunction (0)
// is also tense for Mars against a personal point.
func isHarshAspect(distance int) bool {
	return distance == 3 || distance == 6 || distance == 0
}

// UserChart holds the lowercased sign names parsed from KB-01.
type UserChart struct {
	Sun    string
	Moon   string
	Rising string
}

// ParseUserChart accepts either explicit sun/moon/rising(/ascendant) fields
// or a single "archetype"/"archetype_raw" string like "Pisces/Virgo/Gemini".
func ParseUserChart(profile map[string]interface{}) (UserChart, bool) {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := profile[k]; ok {
				if s, ok := v.(string); ok {
					return strings.ToLower(strings.TrimSpace(s))
				}
			}
		}
		return ""
	}

	chart := UserChart{
		Sun:    get("sun", "Sun"),
		Moon:   get("moon", "Moon"),
		Rising: get("rising", "Rising", "ascendant"),
	}

	if chart.Sun == "" && chart.Moon == "" && chart.Rising == "" {
		raw := get("archetype", "archetype_raw")
		if raw == "" {
			return UserChart{}, false
		}
		parts := strings.Split(raw, "/")
		for i := range parts {
			parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
		}
		if len(parts) > 0 {
			chart.Sun = parts[0]
		}
		if len(parts) > 1 {
			chart.Moon = parts[1]
		}
		if len(parts) > 2 {
			chart.Rising = parts[2]
		}
	}

	if chart.Sun == "" && chart.Moon == "" && chart.Rising == "" {
		return UserChart{}, false
	}
	return chart, true
}

// simulatedMarsSignIndex approximates Mars's current sign deterministically
// from day-of-year, avoiding any ephemeris dependency: (day_of_year * 12 /
// 365) % 12 advances one sign roughly every 30 days and cycles through all
// twelve signs once a year. Real Mars spends roughly two months per sign,
// so this is a coarse placeholder for a tension heuristic, not a position.
func simulatedMarsSignIndex(now time.Time) int {
	doy := now.YearDay()
	return (doy * 12 / 365) % 12
}

// CheckAstroWeather compares the simulated Mars position against chart and
// returns today's transit state. now is passed in explicitly to keep the
// function pure and testable.
func CheckAstroWeather(chart UserChart, haveChart bool, now time.Time) State {
	updatedAtMs := now.UnixMilli()

	if !haveChart {
		return State{
			Risk:           RiskStable,
			TransitSummary: "No birth chart in KB-01",
			Advice:         "Standard boundary awareness. Add Sun/Moon/Rising to KB-01 for transit alerts.",
			UpdatedAtMs:    updatedAtMs,
		}
	}

	marsIdx := simulatedMarsSignIndex(now)

	harshAny := false
	var summaryParts []string

	places := []struct{ place, sign string }{
		{"Sun", chart.Sun},
		{"Moon", chart.Moon},
		{"Rising", chart.Rising},
	}
	for _, p := range places {
		if p.sign == "" {
			continue
		}
		idx := signIndex(p.sign)
		if idx < 0 {
			continue
		}
		dist := aspectDistance(marsIdx, idx)
		if isHarshAspect(dist) {
			harshAny = true
			aspect := "aspect"
			switch dist {
			case 0:
				aspect = "conjunct"
			case 3:
				aspect = "square"
			case 6:
				aspect = "opposition"
			}
			summaryParts = append(summaryParts, fmt.Sprintf("Mars %s %s", aspect, p.place))
		}
	}

	if harshAny {
		summary := "Mars in harsh aspect to personal points"
		if len(summaryParts) > 0 {
			summary = strings.Join(summaryParts, "; ")
		}
		return State{
			Risk:           RiskHighRisk,
			TransitSummary: summary,
			Advice:         "Risk: High irritability and sovereignty leaks. Lean into Gray Rock protocols; defer non-essential boundary tests.",
			UpdatedAtMs:    updatedAtMs,
		}
	}

	return State{
		Risk:           RiskStable,
		TransitSummary: "No harsh transits today",
		Advice:         "Standard boundary awareness. Proceed with usual protocols.",
		UpdatedAtMs:    updatedAtMs,
	}
}

// SystemAlertIfHighRisk returns a one-line log message when state is high
// risk, or "" otherwise.
func SystemAlertIfHighRisk(state State) string {
	if !state.Risk.IsHighRisk() {
		return ""
	}
	return fmt.Sprintf("Astro-Weather High Risk: %s. %s", state.TransitSummary, state.Advice)
}

// SystemPromptBlock formats state for injection into the LLM system prompt.
func SystemPromptBlock(state State) string {
	riskLabel := "Stable"
	switch state.Risk {
	case RiskElevated:
		riskLabel = "Elevated"
	case RiskHighRisk:
		riskLabel = "High (irritability and sovereignty leaks more likely)"
	}
	return fmt.Sprintf("Today's Transit: %s. Risk: %s. Advice: %s", state.TransitSummary, riskLabel, state.Advice)
}

// StaleMillis is the refresh threshold: 6 hours.
const StaleMillis = 6 * 60 * 60 * 1000

// ShouldRefresh reports whether state is missing or older than StaleMillis.
func ShouldRefresh(state State, nowMs int64) bool {
	if state.UpdatedAtMs == 0 {
		return true
	}
	return nowMs-state.UpdatedAtMs > StaleMillis
}
