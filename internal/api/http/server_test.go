package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/engine"
)

// fakeService is an in-memory AlarmService covering the API surface.
type fakeService struct {
	// mu protects all fields.
	mu sync.Mutex
	// schedules is the stored set keyed by ID.
	schedules map[uint64]*domain.Schedule
	// nextID is the next schedule ID to assign.
	nextID uint64
	// revision is the local revision counter.
	revision uint64
	// state is the reported engine state.
	state domain.EngineState
	// snoozes and dismisses count accepted commands.
	snoozes, dismisses int
}

func newFakeService() *fakeService {
	return &fakeService{
		schedules: make(map[uint64]*domain.Schedule),
		nextID:    1,
		state:     domain.StateIdle,
	}
}

func (f *fakeService) CreateSchedule(_ context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if schedule.ID == 0 {
		schedule.ID = f.nextID
	} else if _, exists := f.schedules[schedule.ID]; exists {
		return nil, fmt.Errorf("%w: id %d", engine.ErrScheduleExists, schedule.ID)
	}

	if schedule.ID >= f.nextID {
		f.nextID = schedule.ID + 1
	}

	f.schedules[schedule.ID] = schedule.Clone()
	f.revision++

	return schedule.Clone(), nil
}

func (f *fakeService) UpdateSchedule(_ context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.schedules[schedule.ID]; !exists {
		return nil, fmt.Errorf("%w: id %d", engine.ErrScheduleNotFound, schedule.ID)
	}

	f.schedules[schedule.ID] = schedule.Clone()
	f.revision++

	return schedule.Clone(), nil
}

func (f *fakeService) DeleteSchedule(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.schedules[id]; !exists {
		return fmt.Errorf("%w: id %d", engine.ErrScheduleNotFound, id)
	}

	delete(f.schedules, id)
	f.revision++

	return nil
}

func (f *fakeService) Schedules(context.Context) ([]*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	schedules := make([]*domain.Schedule, 0, len(f.schedules))
	for _, schedule := range f.schedules {
		schedules = append(schedules, schedule.Clone())
	}

	return schedules, nil
}

func (f *fakeService) Snooze(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != domain.StateRinging {
		return engine.ErrNoActiveRing
	}

	f.state = domain.StateSnoozed
	f.snoozes++

	return nil
}

func (f *fakeService) Dismiss(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != domain.StateRinging && f.state != domain.StateSnoozed {
		return engine.ErrNoActiveRing
	}

	f.state = domain.StateDismissed
	f.dismisses++

	return nil
}

func (f *fakeService) Status(context.Context) (*domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &domain.Status{State: f.state, Revision: f.revision}, nil
}

func (f *fakeService) Envelope(context.Context) (*domain.SyncEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.envelopeLocked(), nil
}

func (f *fakeService) ApplyEnvelope(_ context.Context, remote *domain.SyncEnvelope) (*domain.SyncEnvelope, domain.RevisionOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := domain.CompareRevisions(f.revision, remote.Revision)
	if order == domain.RevisionBehind {
		f.revision = remote.Revision
		f.schedules = make(map[uint64]*domain.Schedule, len(remote.Schedules))

		for _, schedule := range remote.Schedules {
			f.schedules[schedule.ID] = schedule.Clone()
		}
	}

	return f.envelopeLocked(), order, nil
}

func (f *fakeService) envelopeLocked() *domain.SyncEnvelope {
	schedules := make([]*domain.Schedule, 0, len(f.schedules))
	for _, schedule := range f.schedules {
		schedules = append(schedules, schedule.Clone())
	}

	return &domain.SyncEnvelope{
		DeviceID:  "server-device",
		Revision:  f.revision,
		Schedules: schedules,
		Status:    &domain.Status{State: f.state, Revision: f.revision},
	}
}

// newTestAPI returns a running test server over a fresh fake service.
func newTestAPI(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()

	service := newFakeService()
	server := httptest.NewServer(NewServer(service))
	t.Cleanup(server.Close)

	return service, server
}

// doJSON performs a request with an optional JSON body and decodes the reply.
func doJSON(t *testing.T, method, url string, body, reply any) *http.Response {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	if reply != nil && resp.StatusCode < http.StatusMultipleChoices {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(reply))
	}

	return resp
}

func TestServer_ScheduleCRUD(t *testing.T) {
	t.Parallel()

	_, server := newTestAPI(t)

	// Create.
	var created domain.Schedule

	resp := doJSON(t, http.MethodPost, server.URL+"/v1/schedules", &domain.Schedule{
		Hour:    7,
		Minute:  15,
		Repeat:  domain.RepeatDaily,
		Enabled: true,
		Snooze:  9 * time.Minute,
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, uint64(1), created.ID)

	// List.
	var listed []*domain.Schedule

	resp = doJSON(t, http.MethodGet, server.URL+"/v1/schedules", nil, &listed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, listed, 1)

	// Update: the path ID wins over the body ID.
	created.Minute = 45
	created.ID = 999

	var updated domain.Schedule

	resp = doJSON(t, http.MethodPut, server.URL+"/v1/schedules/1", &created, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, uint64(1), updated.ID)
	require.Equal(t, 45, updated.Minute)

	// Delete.
	resp = doJSON(t, http.MethodDelete, server.URL+"/v1/schedules/1", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, server.URL+"/v1/schedules/1", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	_, server := newTestAPI(t)

	// Validation failure.
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/schedules", &domain.Schedule{
		Hour:   99,
		Repeat: domain.RepeatDaily,
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body.Error, "invalid schedule")

	// Malformed body.
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, server.URL+"/v1/schedules", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)

	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)

	// Malformed path ID.
	resp = doJSON(t, http.MethodDelete, server.URL+"/v1/schedules/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown schedule.
	resp = doJSON(t, http.MethodPut, server.URL+"/v1/schedules/42", &domain.Schedule{
		Hour:   6,
		Repeat: domain.RepeatDaily,
		Snooze: time.Minute,
	}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SnoozeAndDismiss(t *testing.T) {
	t.Parallel()

	service, server := newTestAPI(t)

	// No ring yet: conflict.
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/snooze", nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	service.mu.Lock()
	service.state = domain.StateRinging
	service.mu.Unlock()

	var status domain.Status

	resp = doJSON(t, http.MethodPost, server.URL+"/v1/snooze", nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StateSnoozed, status.State)

	resp = doJSON(t, http.MethodPost, server.URL+"/v1/dismiss", nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StateDismissed, status.State)
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	service, server := newTestAPI(t)

	service.mu.Lock()
	service.state = domain.StateArmed
	service.revision = 5
	service.mu.Unlock()

	var status domain.Status

	resp := doJSON(t, http.MethodGet, server.URL+"/v1/status", nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StateArmed, status.State)
	require.Equal(t, uint64(5), status.Revision)
}

func TestServer_SyncRequiresDeviceID(t *testing.T) {
	t.Parallel()

	_, server := newTestAPI(t)

	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodGet, server.URL+"/v1/sync", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_SyncPushPull(t *testing.T) {
	t.Parallel()

	service, server := newTestAPI(t)

	push := func(envelope *domain.SyncEnvelope) (*domain.SyncEnvelope, int) {
		raw, err := json.Marshal(envelope)
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(context.Background(),
			http.MethodPost, server.URL+"/v1/sync", bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Device-ID", "peer-device")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		defer resp.Body.Close()

		var winner domain.SyncEnvelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&winner))

		return &winner, resp.StatusCode
	}

	// A newer remote envelope is adopted.
	winner, code := push(&domain.SyncEnvelope{
		DeviceID: "peer-device",
		Revision: 10,
		Schedules: []*domain.Schedule{
			{ID: 3, Hour: 8, Repeat: domain.RepeatDaily, Enabled: true, Snooze: time.Minute},
		},
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint64(10), winner.Revision)

	service.mu.Lock()
	require.Len(t, service.schedules, 1)
	service.mu.Unlock()

	// A stale push gets the local envelope back.
	winner, code = push(&domain.SyncEnvelope{DeviceID: "peer-device", Revision: 2})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint64(10), winner.Revision)
	require.Len(t, winner.Schedules, 1)

	// Pull returns the same envelope.
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodGet, server.URL+"/v1/sync", nil)
	require.NoError(t, err)
	req.Header.Set("X-Device-ID", "peer-device")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pulled domain.SyncEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pulled))
	require.Equal(t, uint64(10), pulled.Revision)
}
