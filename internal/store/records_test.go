package store_test

import (
	"strings"
	"testing"

	"pagi/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPersonClampsTrustScore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetPerson(store.PersonRecord{Name: "Overflow", TrustScore: 4.2}))
	require.NoError(t, s.SetPerson(store.PersonRecord{Name: "Underflow", TrustScore: -1.0}))

	got, err := s.GetPerson("overflow")
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), got.TrustScore)

	got, err = s.GetPerson("underflow")
	require.NoError(t, err)
	assert.Equal(t, float32(0.0), got.TrustScore)
}

func TestSomaStateCurrentAndBalanceHistory(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetSomaState(1000, store.SomaState{SleepHours: 6, ReadinessScore: 55}))
	require.NoError(t, s.SetSomaState(2000, store.SomaState{SleepHours: 4, ReadinessScore: 30}))

	current, err := s.GetSomaState()
	require.NoError(t, err)
	assert.Equal(t, float32(4), current.SleepHours)
	assert.Equal(t, float32(30), current.ReadinessScore)

	history, err := s.GetSomaBalanceHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Most recent first.
	assert.Equal(t, float32(30), history[0].ReadinessScore)
	assert.Equal(t, float32(55), history[1].ReadinessScore)
}

func TestGetSomaStateDefaultsToRestedWhenUnset(t *testing.T) {
	s := openTestStore(t)
	soma, err := s.GetSomaState()
	require.NoError(t, err)
	assert.Greater(t, soma.SleepHours, float32(5))
	assert.Greater(t, soma.ReadinessScore, float32(40))
}

func TestEthosPresetStoicMentionsControl(t *testing.T) {
	policy, ok := store.EthosPreset(store.EthosStoic)
	require.True(t, ok)
	assert.Equal(t, store.EthosStoic, policy.ActiveSchool)
	found := false
	for _, m := range policy.CoreMaxims {
		if strings.Contains(strings.ToLower(m), "control") {
			found = true
		}
	}
	assert.True(t, found, "Stoic preset should mention control")

	instruction := policy.ToSystemInstruction()
	assert.Contains(t, instruction, "Stoic")
	assert.Contains(t, instruction, "control")
	assert.InDelta(t, 0.8, policy.ToneWeight, 0.01)
}

func TestEthosPresetUnknownSchoolIsNotOK(t *testing.T) {
	_, ok := store.EthosPreset("Nihilist")
	assert.False(t, ok)
}

func TestEthosPolicyStoreRoundtripAndClamp(t *testing.T) {
	s := openTestStore(t)

	unset, err := s.GetEthosPhilosophicalPolicy()
	require.NoError(t, err)
	assert.Equal(t, "", unset.ActiveSchool)

	stoic, _ := store.EthosPreset(store.EthosStoic)
	require.NoError(t, s.SetEthosPolicy(stoic))

	loaded, err := s.GetEthosPhilosophicalPolicy()
	require.NoError(t, err)
	assert.Equal(t, "Stoic", loaded.ActiveSchool)
	assert.Len(t, loaded.CoreMaxims, 3)

	require.NoError(t, s.SetEthosPolicy(store.EthosPolicy{ActiveSchool: "custom", ToneWeight: 5.0}))
	loaded, err = s.GetEthosPhilosophicalPolicy()
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), loaded.ToneWeight)
}

func TestEthosPolicyIsDistinctFromSafetyPolicy(t *testing.T) {
	s := openTestStore(t)
	stoic, _ := store.EthosPreset(store.EthosStoic)
	require.NoError(t, s.SetEthosPolicy(stoic))
	require.NoError(t, s.SetSafetyPolicy(store.PolicyRecord{ForbiddenActions: []string{"delete_all"}}))

	philosophical, err := s.GetEthosPhilosophicalPolicy()
	require.NoError(t, err)
	assert.Equal(t, "Stoic", philosophical.ActiveSchool)

	safety, err := s.GetSafetyPolicy()
	require.NoError(t, err)
	assert.False(t, safety.Allows("delete_all"))
}

func TestGetBackgroundTaskReadsFromMentalStateSlot(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetBackgroundTask("agent-9", "summarize the week"))

	task, ok := s.GetBackgroundTask("agent-9")
	require.True(t, ok)
	assert.Equal(t, "summarize the week", task)

	keys, err := s.ScanKeys(store.SlotMentalState, "pneuma/agent-9/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	keys, err = s.ScanKeys(store.SlotSoma, "pneuma/agent-9/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCheckMentalLoadDerivesFromSomaAndKardia(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetSomaState(1, store.SomaState{SleepHours: 4.0, ReadinessScore: 30}))
	require.NoError(t, s.SetPerson(store.PersonRecord{Name: "Project Manager", TrustScore: 0.3, AttachmentStyle: "Avoidant"}))

	ms, err := s.CheckMentalLoad()
	require.NoError(t, err)
	assert.Equal(t, float32(1.6), ms.GraceMultiplier)
	assert.True(t, ms.HasPhysicalLoadAdjustment)
	assert.Greater(t, ms.RelationalStress, float32(0))
}
