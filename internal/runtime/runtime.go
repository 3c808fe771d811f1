// Package runtime dispatches skill invocations through the sovereignty
// firewall, an Ethos policy check, panic recovery, and a per-skill
// timeout, then records the outcome as a Chronos event.
package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pagi/internal/logging"
	"pagi/internal/manifest"
	"pagi/internal/store"
)

var log = logging.Get(logging.CategoryRuntime)

// Skill is anything the orchestrator can invoke by name. Input/output are
// free-form JSON-ish maps; concrete skills decode their own shape.
type Skill interface {
	ID() string
	KBLayer() int // the KB layer this skill primarily touches, for firewall checks
	Run(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// EthosChecker gates a skill invocation against KB-06 safety/philosophical
// policy before it runs. nil means no policy configured, which Allows
// always permits.
type EthosChecker interface {
	Allows(action string) bool
}

// Result is what a dispatched skill invocation produced, win or lose.
type Result struct {
	SkillID  string
	Output   map[string]interface{}
	Err      error
	Duration time.Duration
}

// Dispatcher wires the manifest firewall, an Ethos policy, and a timeout
// budget around skill execution.
type Dispatcher struct {
	registry *manifest.Registry
	strict   bool
	ethos    EthosChecker
	timeout  time.Duration
	st       *store.Store
}

func NewDispatcher(registry *manifest.Registry, strict bool, ethos EthosChecker, timeout time.Duration, st *store.Store) *Dispatcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Dispatcher{registry: registry, strict: strict, ethos: ethos, timeout: timeout, st: st}
}

// Dispatch runs a single skill under the firewall. A sovereignty violation
// or Ethos denial never reaches Run — it's rejected before the goroutine
// is even started.
func (d *Dispatcher) Dispatch(ctx context.Context, skill Skill, input map[string]interface{}) Result {
	start := time.Now()
	skillID := skill.ID()

	if !d.registry.Allows(skillID, skill.KBLayer(), d.strict) {
		violation := manifest.Violation{SkillID: skillID, KBLayer: skill.KBLayer()}
		log.Warnf("sovereignty firewall rejected skill %s: %v", skillID, violation)
		if d.st != nil {
			detail := fmt.Sprintf("skill_id=%s layer=%d", skillID, skill.KBLayer())
			if err := d.st.RecordSuccessMetric(time.Now().UnixMilli(), "Failed Leak Attempt", detail); err != nil {
				log.Errorf("failed to record leak attempt for %s: %v", skillID, err)
			}
		}
		d.recordOutcome(skillID, "firewall_denied")
		return Result{SkillID: skillID, Err: violation, Duration: time.Since(start)}
	}

	if d.ethos != nil && !d.ethos.Allows(skillID) {
		err := fmt.Errorf("skill %q forbidden by ethos policy", skillID)
		d.recordOutcome(skillID, "ethos_denied")
		return Result{SkillID: skillID, Err: err, Duration: time.Since(start)}
	}

	out, err := d.runWithTimeout(ctx, skill, input)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	d.recordOutcome(skillID, outcome)
	return Result{SkillID: skillID, Output: out, Err: err, Duration: time.Since(start)}
}

// runWithTimeout bounds the skill's execution and recovers a panic into an
// error rather than bringing down the kernel.
func (d *Dispatcher) runWithTimeout(ctx context.Context, skill Skill, input map[string]interface{}) (out map[string]interface{}, err error) {
	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(tctx)
	var result map[string]interface{}

	g.Go(func() (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic in skill %s: %v", skill.ID(), r)
				runErr = fmt.Errorf("skill %s panicked: %v", skill.ID(), r)
			}
		}()
		var e error
		result, e = skill.Run(gctx, input)
		return e
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, waitErr
	}
	if tctx.Err() != nil {
		return nil, fmt.Errorf("skill %s: %w", skill.ID(), tctx.Err())
	}
	return result, nil
}

func (d *Dispatcher) recordOutcome(skillID, outcome string) {
	if d.st == nil {
		return
	}
	rec := store.NewEventRecord(time.Now().UnixMilli(), "runtime."+skillID, "skill dispatched").WithOutcome(outcome)
	if err := d.st.AppendChronosEvent(rec); err != nil {
		log.Errorf("failed to record chronos event for %s: %v", skillID, err)
	}
}
