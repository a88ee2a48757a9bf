package alarm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCompareRevisions orders local against remote revisions.
func TestCompareRevisions(t *testing.T) {
	t.Parallel()

	require.Equal(t, RevisionEqual, CompareRevisions(5, 5))
	require.Equal(t, RevisionAhead, CompareRevisions(6, 5))
	require.Equal(t, RevisionBehind, CompareRevisions(5, 6))
}

// TestSyncEnvelope_Clone ensures the clone shares nothing with the original.
func TestSyncEnvelope_Clone(t *testing.T) {
	t.Parallel()

	env := &SyncEnvelope{
		DeviceID: "device-a",
		Revision: 3,
		Schedules: []*Schedule{
			{ID: 1, Hour: 7, Repeat: RepeatDaily, Enabled: true},
		},
		Status: &Status{State: StateRinging, ActiveScheduleID: 1},
	}

	cloned := env.Clone()
	cloned.Schedules[0].Hour = 9
	cloned.Status.State = StateIdle

	require.Equal(t, 7, env.Schedules[0].Hour)
	require.Equal(t, StateRinging, env.Status.State)
}

// TestEngineState_TextRoundtrip verifies states marshal to names and back.
func TestEngineState_TextRoundtrip(t *testing.T) {
	t.Parallel()

	for _, state := range []EngineState{StateIdle, StateArmed, StateRinging, StateSnoozed, StateDismissed} {
		data, err := json.Marshal(state)
		require.NoError(t, err)

		var parsed EngineState

		require.NoError(t, json.Unmarshal(data, &parsed))
		require.Equal(t, state, parsed)
	}

	var parsed EngineState

	require.Error(t, json.Unmarshal([]byte(`"levitating"`), &parsed))
}

// TestStatus_Clone checks snapshot copies are independent values.
func TestStatus_Clone(t *testing.T) {
	t.Parallel()

	status := &Status{State: StateArmed, EnteredAt: time.Unix(100, 0)}
	cloned := status.Clone()
	cloned.State = StateIdle

	require.Equal(t, StateArmed, status.State)
}
