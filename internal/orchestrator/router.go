package orchestrator

import (
	"strings"

	"pagi/internal/astro"
	"pagi/internal/governor"
	"pagi/internal/store"
)

// TurnContext bundles everything the router needs to compose a single
// turn's system-prompt overlay: the KB-01 profile, governor inputs, the
// cached astro-weather state, and protocol/heuristic configuration.
type TurnContext struct {
	Profile           map[string]interface{}
	GovernorInput     governor.Input
	Astro             astro.State
	ProtocolsEnabled  bool
	SubjectRank       int
	AstroLogicEnabled bool
}

// Directive is the composed overlay for a single turn.
type Directive struct {
	SystemPromptBlocks   []string
	TemperatureOverride  float32
	HasTemperature       bool
	VerbosityOverride    string
	LoadMultiplier       float32
}

// ComposeTurnDirective runs the governor, archetype triggers, protocol
// engine, and astro-weather block together and merges their overlays into
// one directive, in priority order: governor anchor/relationship directive
// first (most concrete/recent), then archetype/tone, then protocol
// posture, then astro-weather advisory.
func ComposeTurnDirective(st *store.Store, tc TurnContext) Directive {
	var d Directive

	ms := governor.Evaluate(tc.GovernorInput)
	eff := governor.Advise(ms, tc.GovernorInput.ActiveAnchors)
	if eff.DirectiveText != "" {
		d.SystemPromptBlocks = append(d.SystemPromptBlocks, eff.DirectiveText)
	}
	d.LoadMultiplier = eff.LoadMultiplier
	if eff.HasTemperatureOverride {
		d.TemperatureOverride = eff.TemperatureOverride
		d.HasTemperature = true
	}
	if eff.VerbosityOverride != "" {
		d.VerbosityOverride = eff.VerbosityOverride
	}

	trig := ProcessArchetypeTriggers(st, tc.Profile, tc.AstroLogicEnabled)
	if trig.Directive != "" {
		d.SystemPromptBlocks = append(d.SystemPromptBlocks, trig.Directive)
	}
	if trig.HasTemperature && !d.HasTemperature {
		d.TemperatureOverride = trig.TemperatureOverride
		d.HasTemperature = true
	}
	if trig.VerbosityOverride != "" && d.VerbosityOverride == "" {
		d.VerbosityOverride = trig.VerbosityOverride
	}

	if tc.ProtocolsEnabled {
		engine := NewProtocolEngine(true)
		if advice := engine.GetProtocolAdvice(tc.SubjectRank); advice != "" {
			d.SystemPromptBlocks = append(d.SystemPromptBlocks, advice)
		}
	}

	if tc.Astro.Risk != "" {
		d.SystemPromptBlocks = append(d.SystemPromptBlocks, astro.SystemPromptBlock(tc.Astro))
	}

	return d
}

// RenderSystemPrompt joins a Directive's blocks into the final overlay
// text appended ahead of the base system prompt.
func RenderSystemPrompt(d Directive) string {
	return strings.Join(d.SystemPromptBlocks, "\n\n")
}

// RecordTransitCorrelationIfHighRisk writes today's astro-weather state to
// KB-08 (transit_correlation/{date}) when risk is high, so transit days
// can later be compared against logged friction; nothing in this
// repository reads these entries back. This is the
// thin I/O wrapper the pure astro package deliberately omits.
func RecordTransitCorrelationIfHighRisk(st *store.Store, state astro.State, dateKey string) error {
	if !state.Risk.IsHighRisk() || st == nil {
		return nil
	}
	rec := store.NewEventRecord(state.UpdatedAtMs, "transit_correlation", state.TransitSummary).WithOutcome(string(state.Risk))
	return store.InsertJSON(st, store.SlotSoma, "transit_correlation/"+dateKey, rec)
}
