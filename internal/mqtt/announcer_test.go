package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "rouse/internal/domain/alarm"
)

// fakeCommander is a no-op Commander for announcer construction tests.
type fakeCommander struct {
	// snapshots is the status stream handed to the announcer.
	snapshots chan *domain.Status
}

// Snooze accepts the command.
func (f *fakeCommander) Snooze(context.Context) error { return nil }

// Dismiss accepts the command.
func (f *fakeCommander) Dismiss(context.Context) error { return nil }

// Subscribe returns the status stream.
func (f *fakeCommander) Subscribe() <-chan *domain.Status { return f.snapshots }

func TestTopics(t *testing.T) {
	t.Parallel()

	require.Equal(t, "rouse/abc-123/status", StatusTopic("abc-123"))
	require.Equal(t, "rouse/abc-123/command", CommandTopic("abc-123"))
}

func TestEncodeStatus(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, time.March, 3, 6, 30, 0, 0, time.UTC)

	payload, err := EncodeStatus("abc-123", &domain.Status{
		State:            domain.StateRinging,
		ActiveScheduleID: 7,
		Present:          true,
		Revision:         42,
	}, at)
	require.NoError(t, err)

	var decoded StatusMessage
	require.NoError(t, json.Unmarshal(payload, &decoded))

	require.Equal(t, "abc-123", decoded.DeviceID)
	require.Equal(t, domain.StateRinging, decoded.State)
	require.Equal(t, uint64(7), decoded.ActiveScheduleID)
	require.True(t, decoded.Present)
	require.Equal(t, uint64(42), decoded.Revision)
	require.Equal(t, at, decoded.At)
}

func TestEncodeStatus_OmitsInactiveSchedule(t *testing.T) {
	t.Parallel()

	payload, err := EncodeStatus("abc-123", &domain.Status{State: domain.StateIdle}, time.Now().UTC())
	require.NoError(t, err)

	require.NotContains(t, string(payload), "active_schedule_id")
}

// TestNewAnnouncer_RequiresBroker rejects a configuration without a broker URL.
func TestNewAnnouncer_RequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := NewAnnouncer(context.Background(), Config{DeviceID: "abc-123"},
		&fakeCommander{snapshots: make(chan *domain.Status)})
	require.ErrorIs(t, err, errNoBroker)
}

// TestNewAnnouncer_BrokerDownAtBoot verifies an unreachable broker does not
// fail construction: connecting keeps retrying in the background and Run
// still honors cancellation.
func TestNewAnnouncer_BrokerDownAtBoot(t *testing.T) {
	t.Parallel()

	a, err := NewAnnouncer(context.Background(), Config{
		Broker:   "tcp://127.0.0.1:1",
		DeviceID: "abc-123",
	}, &fakeCommander{snapshots: make(chan *domain.Status)})
	require.NoError(t, err)
	require.NotNil(t, a)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- a.Run(ctx)
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
