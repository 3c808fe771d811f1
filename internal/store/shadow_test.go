package store_test

import (
	"path/filepath"
	"testing"

	"pagi/internal/store"
	"pagi/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openUnlockedTestStore(t *testing.T) *store.Store {
	t.Helper()
	v, err := vault.New(make([]byte, 32))
	require.NoError(t, err)
	s, err := store.Open(filepath.Join(t.TempDir(), "kb.db"), v)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestInsertShadowAnchorRoundtrip guards against the double-encryption bug:
// Insert already applies Slot 9's single encryption pass, so a second
// encrypt on write used to leave GetShadowAnchor decrypting into ciphertext
// and failing json.Unmarshal.
func TestInsertShadowAnchorRoundtrip(t *testing.T) {
	s := openUnlockedTestStore(t)
	anchor := vault.NewEmotionalAnchor("grief", 0.9, 1000).WithLabel("Loss of a parent")

	require.NoError(t, s.InsertShadowAnchor(anchor))

	got, err := s.GetShadowAnchor(anchor.Label)
	require.NoError(t, err)
	assert.Equal(t, anchor.AnchorType, got.AnchorType)
	assert.InDelta(t, 0.9, got.Intensity, 0.001)
	assert.True(t, got.Active)
}

func TestListActiveShadowAnchorsFiltersInactive(t *testing.T) {
	s := openUnlockedTestStore(t)

	active := vault.NewEmotionalAnchor("conflict", 0.7, 1000).WithLabel("Ongoing dispute")
	require.NoError(t, s.InsertShadowAnchor(active))

	inactive := vault.NewEmotionalAnchor("high_stress", 0.6, 1000).WithLabel("Resolved deadline")
	inactive.Active = false
	require.NoError(t, s.InsertShadowAnchor(inactive))

	anchors, err := s.ListActiveShadowAnchors()
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, "conflict", anchors[0].AnchorType)
}

// TestCheckMentalLoadConsumesActiveAnchors confirms the §4.3 data flow from
// active Shadow anchors into the governor, which InsertShadowAnchor's
// double-encryption bug previously severed entirely.
func TestCheckMentalLoadConsumesActiveAnchors(t *testing.T) {
	s := openUnlockedTestStore(t)
	anchor := vault.NewEmotionalAnchor("grief", 0.85, 1000).WithLabel("Recent loss")
	require.NoError(t, s.InsertShadowAnchor(anchor))

	ms, err := s.CheckMentalLoad()
	require.NoError(t, err)
	assert.Equal(t, float32(1.6), ms.GraceMultiplier)
	assert.True(t, ms.HasPhysicalLoadAdjustment)
	assert.GreaterOrEqual(t, ms.RelationalStress, float32(0.85))
}

func TestListActiveShadowAnchorsReturnsErrLockedWhenVaultLocked(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ListActiveShadowAnchors()
	require.ErrorIs(t, err, store.ErrLocked)
}
