package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"pagi/internal/manifest"
	"pagi/internal/store"
	"pagi/internal/vault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSkill struct {
	id      string
	layer   int
	run     func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

func (s stubSkill) ID() string      { return s.id }
func (s stubSkill) KBLayer() int    { return s.layer }
func (s stubSkill) Run(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return s.run(ctx, input)
}

type denyAllEthos struct{}

func (denyAllEthos) Allows(action string) bool { return false }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	v, err := vault.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	st, err := store.Open(filepath.Join(dir, "kernel.db"), v)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testRegistry(t *testing.T) *manifest.Registry {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "core.yaml"), []byte(`
trust_tier: core
skills:
  - skill_id: good_skill
    kb_layers_allowed: [2]
  - skill_id: panicky_skill
    kb_layers_allowed: [2]
  - skill_id: slow_skill
    kb_layers_allowed: [2]
`), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := manifest.LoadFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDispatchSuccess(t *testing.T) {
	d := NewDispatcher(testRegistry(t), false, nil, time.Second, testStore(t))
	skill := stubSkill{id: "good_skill", layer: 2, run: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}}
	res := d.Dispatch(context.Background(), skill, nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Output["ok"] != true {
		t.Fatalf("unexpected output: %+v", res.Output)
	}
}

func TestDispatchFirewallDenied(t *testing.T) {
	d := NewDispatcher(testRegistry(t), false, nil, time.Second, testStore(t))
	skill := stubSkill{id: "unregistered", layer: 1, run: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		t.Fatal("skill must not run when firewall denies it")
		return nil, nil
	}}
	res := d.Dispatch(context.Background(), skill, nil)
	var violation manifest.Violation
	if !errors.As(res.Err, &violation) {
		t.Fatalf("expected a sovereignty violation, got %v", res.Err)
	}
}

func TestDispatchEthosDenied(t *testing.T) {
	d := NewDispatcher(testRegistry(t), false, denyAllEthos{}, time.Second, testStore(t))
	skill := stubSkill{id: "good_skill", layer: 2, run: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		t.Fatal("skill must not run when ethos denies it")
		return nil, nil
	}}
	res := d.Dispatch(context.Background(), skill, nil)
	if res.Err == nil {
		t.Fatal("expected ethos denial error")
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := NewDispatcher(testRegistry(t), false, nil, time.Second, testStore(t))
	skill := stubSkill{id: "panicky_skill", layer: 2, run: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		panic("boom")
	}}
	res := d.Dispatch(context.Background(), skill, nil)
	if res.Err == nil {
		t.Fatal("expected recovered panic to surface as an error")
	}
}

func TestDispatchTimesOut(t *testing.T) {
	d := NewDispatcher(testRegistry(t), false, nil, 20*time.Millisecond, testStore(t))
	skill := stubSkill{id: "slow_skill", layer: 2, run: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-time.After(time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	res := d.Dispatch(context.Background(), skill, nil)
	if res.Err == nil {
		t.Fatal("expected timeout error")
	}
}
