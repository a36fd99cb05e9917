package availability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-agent/internal/calendar"
	"github.com/teemow/workspace-agent/internal/slots"
)

const testSession = "session_0000000000000000000000000000000000000000000000000000000000000001"

var errNoCredentials = errors.New("no credentials")

type fakeCredentials struct {
	client *http.Client
	err    error
	calls  []string
}

func (f *fakeCredentials) Client(_ context.Context, sessionID string) (*http.Client, error) {
	f.calls = append(f.calls, sessionID)
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func newTestService(t *testing.T, body string, status int) (*Service, *fakeCredentials) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	creds := &fakeCredentials{client: srv.Client()}
	svc, err := NewService(Config{
		Credentials:     creds,
		CalendarOptions: []calendar.Option{calendar.WithEndpoint(srv.URL + "/"), calendar.WithRetry(1, time.Second, nil)},
		Now:             func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, creds
}

func TestNewService_RequiresCredentials(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)
}

func TestFindSlots(t *testing.T) {
	svc, creds := newTestService(t, `{
		"calendars": {"primary": {"busy": [{"start": "2024-01-01T10:00:00Z", "end": "2024-01-01T11:00:00Z"}]}}
	}`, http.StatusOK)

	req := DefaultRequest()
	req.Days = 1
	req.StartHour = 9
	req.EndHour = 17

	result, err := svc.FindSlots(context.Background(), testSession, req, SourceHTTP)
	require.NoError(t, err)
	assert.Equal(t, []string{testSession}, creds.calls)

	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), result.WindowStart)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), result.WindowEnd)
	assert.Equal(t, 1, result.BusyCount)

	require.Len(t, result.Slots, slots.MaxSlots)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), result.Slots[0].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), result.Slots[1].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC), result.Slots[11].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC), result.Slots[11].End)
}

func TestFindSlots_NoAvailability(t *testing.T) {
	svc, _ := newTestService(t, `{
		"calendars": {"primary": {"busy": [{"start": "2024-01-01T00:00:00Z", "end": "2024-01-03T00:00:00Z"}]}}
	}`, http.StatusOK)

	req := DefaultRequest()
	req.Days = 1

	result, err := svc.FindSlots(context.Background(), testSession, req, SourceMCP)
	require.NoError(t, err)
	assert.NotNil(t, result.Slots)
	assert.Empty(t, result.Slots)
}

func TestFindSlots_InvalidRequest(t *testing.T) {
	svc, creds := newTestService(t, `{}`, http.StatusOK)

	req := DefaultRequest()
	req.Days = 0

	_, err := svc.FindSlots(context.Background(), testSession, req, SourceHTTP)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, creds.calls, "invalid requests must not reach the provider")

	req = DefaultRequest()
	req.StartHour = 18
	req.EndHour = 9
	_, err = svc.FindSlots(context.Background(), testSession, req, SourceHTTP)
	assert.ErrorIs(t, err, slots.ErrInvalidConfiguration)
}

func TestFindSlots_CredentialError(t *testing.T) {
	svc, creds := newTestService(t, `{}`, http.StatusOK)
	creds.err = errNoCredentials

	_, err := svc.FindSlots(context.Background(), testSession, DefaultRequest(), SourceHTTP)
	assert.ErrorIs(t, err, errNoCredentials)
}

func TestGetBusyIntervals_ProviderError(t *testing.T) {
	svc, _ := newTestService(t, `{"error": {"code": 403, "message": "forbidden"}}`, http.StatusForbidden)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.GetBusyIntervals(context.Background(), testSession, start, start.Add(time.Hour))
	assert.Error(t, err)
}
