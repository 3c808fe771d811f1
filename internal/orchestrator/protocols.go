package orchestrator

import (
	"fmt"
	"strings"
)

// SovereigntyLeakAutoRank is the Gray Rock rank assigned to a subject whose
// traits match a sovereignty-leak keyword.
const SovereigntyLeakAutoRank = 8

// ProtocolStyle is a communication posture applied based on subject rank.
type ProtocolStyle int

const (
	ProtocolOpen ProtocolStyle = iota
	ProtocolProfessional
	ProtocolGrayRock
)

// ProtocolStyleFromRank maps a KB-02 threat rank (0-10) to a posture:
// higher rank means more defensive.
func ProtocolStyleFromRank(rank int) ProtocolStyle {
	switch {
	case rank >= 8:
		return ProtocolGrayRock
	case rank >= 4:
		return ProtocolProfessional
	default:
		return ProtocolOpen
	}
}

// Advice returns the strategic guidance text for a protocol style.
func (p ProtocolStyle) Advice() string {
	switch p {
	case ProtocolGrayRock:
		return "GRAY ROCK PROTOCOL: Keep responses minimal, emotionally flat, and uninteresting. " +
			"Avoid sharing personal details or emotional reactions. Be boring and unrewarding " +
			"to manipulative probing. Refer to KB-02 for identified manipulation patterns."
	case ProtocolProfessional:
		return "PROFESSIONAL PROTOCOL: Maintain polite but distant communication. Keep boundaries " +
			"clear and responses business-like. Avoid emotional vulnerability. Monitor for " +
			"manipulation attempts per KB-02."
	default:
		return "OPEN PROTOCOL: Normal, warm communication is appropriate. Subject shows low " +
			"manipulation risk. Maintain awareness but engage naturally."
	}
}

// ProtocolEngine applies sovereign security protocols, gated by whether
// the caller has enabled them (SOVEREIGN_PROTOCOLS_ENABLED upstream).
type ProtocolEngine struct {
	enabled bool
}

func NewProtocolEngine(enabled bool) *ProtocolEngine {
	return &ProtocolEngine{enabled: enabled}
}

func (e *ProtocolEngine) IsEnabled() bool { return e.enabled }

// ApplyProtocol prepends strategic advice to input based on subjectRank.
// When the engine is disabled it returns "", matching the original's "no
// directive to inject" semantics.
func (e *ProtocolEngine) ApplyProtocol(subjectRank int, input string) string {
	if !e.enabled {
		return ""
	}
	style := ProtocolStyleFromRank(subjectRank)
	return fmt.Sprintf("PROTOCOL ACTIVE: Subject is Rank %d. %s\n\nUser Input: %s", subjectRank, style.Advice(), input)
}

// GetProtocolAdvice returns advice without the user input, for system
// prompt injection rather than direct message rewriting.
func (e *ProtocolEngine) GetProtocolAdvice(subjectRank int) string {
	if !e.enabled {
		return ""
	}
	style := ProtocolStyleFromRank(subjectRank)
	return fmt.Sprintf("PROTOCOL ACTIVE: Subject is Rank %d. %s", subjectRank, style.Advice())
}

// GetProtocolStyle returns the style for subjectRank, or false if protocols
// are disabled.
func (e *ProtocolEngine) GetProtocolStyle(subjectRank int) (ProtocolStyle, bool) {
	if !e.enabled {
		return 0, false
	}
	return ProtocolStyleFromRank(subjectRank), true
}

// RankSubjectFromSovereigntyTriggers cross-references traitsOrInteraction
// against triggers (from KB-05, see GetSovereigntyLeakTriggers) and returns
// SovereigntyLeakAutoRank if any keyword matches, or false otherwise.
// autoRankEnabled gates the whole check off when false.
func RankSubjectFromSovereigntyTriggers(triggers []string, traitsOrInteraction string, autoRankEnabled bool) (int, bool) {
	if !autoRankEnabled {
		return 0, false
	}
	if len(triggers) == 0 || strings.TrimSpace(traitsOrInteraction) == "" {
		return 0, false
	}
	textLower := strings.ToLower(traitsOrInteraction)
	for _, t := range triggers {
		t = strings.TrimSpace(t)
		if t != "" && strings.Contains(textLower, strings.ToLower(t)) {
			return SovereigntyLeakAutoRank, true
		}
	}
	return 0, false
}

// MatchedSovereigntyTriggers returns which triggers matched, for logging.
func MatchedSovereigntyTriggers(triggers []string, traitsOrInteraction string) []string {
	if len(triggers) == 0 || strings.TrimSpace(traitsOrInteraction) == "" {
		return nil
	}
	textLower := strings.ToLower(traitsOrInteraction)
	var out []string
	for _, t := range triggers {
		trimmed := strings.TrimSpace(t)
		if trimmed != "" && strings.Contains(textLower, strings.ToLower(trimmed)) {
			out = append(out, trimmed)
		}
	}
	return out
}
