package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/trackme/internal/domain"
)

type stubRecorder struct {
	err   error
	fixes []domain.LocationFix
}

func (r *stubRecorder) Record(_ context.Context, fix domain.LocationFix) (domain.LocationSample, error) {
	r.fixes = append(r.fixes, fix)
	if r.err != nil {
		return domain.LocationSample{}, r.err
	}
	return domain.LocationSample{ID: "s1", UserID: fix.UserID, RecordedAt: fix.RecordedAt}, nil
}

func fixMessage(t *testing.T, p FixPayload) Message {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return Message{Topic: "location_fixes", Key: "user-key", EventType: DefaultEventType, Payload: raw}
}

func TestTrackingHandlerRecordsFix(t *testing.T) {
	recorder := &stubRecorder{}
	h := NewTrackingHandler(recorder, nil)
	at := time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)

	require.NoError(t, h.Handle(context.Background(), fixMessage(t, FixPayload{
		UserID: "user-1", RecordedAt: at, Latitude: 1, Longitude: 2, HorizontalAccuracy: 3,
	})))
	require.Len(t, recorder.fixes, 1)
	require.Equal(t, domain.LocationFix{UserID: "user-1", RecordedAt: at, Latitude: 1, Longitude: 2, HorizontalAccuracy: 3}, recorder.fixes[0])
}

func TestTrackingHandlerFallsBackToKeyForUser(t *testing.T) {
	recorder := &stubRecorder{}
	h := NewTrackingHandler(recorder, nil)

	require.NoError(t, h.Handle(context.Background(), fixMessage(t, FixPayload{RecordedAt: time.Now()})))
	require.Equal(t, "user-key", recorder.fixes[0].UserID)
}

func TestTrackingHandlerDropsRefusedFixes(t *testing.T) {
	for _, tc := range []struct {
		err    error
		reason string
	}{
		{domain.ErrTrackingDisabled, "tracking_disabled"},
		{fmt.Errorf("%w: too far", domain.ErrFixRejected), "rejected"},
		{fmt.Errorf("%w: bad lat", domain.ErrInvalidSample), "invalid"},
	} {
		before := testutil.ToFloat64(droppedCounter.WithLabelValues(tc.reason))
		h := NewTrackingHandler(&stubRecorder{err: tc.err}, nil)

		require.NoError(t, h.Handle(context.Background(), fixMessage(t, FixPayload{UserID: "u", RecordedAt: time.Now()})))
		require.InDelta(t, before+1, testutil.ToFloat64(droppedCounter.WithLabelValues(tc.reason)), 1e-9, tc.reason)
	}
}

func TestTrackingHandlerReturnsStoreErrors(t *testing.T) {
	h := NewTrackingHandler(&stubRecorder{err: errors.New("db down")}, nil)
	err := h.Handle(context.Background(), fixMessage(t, FixPayload{UserID: "u", RecordedAt: time.Now()}))
	require.Error(t, err)
}

func TestTrackingHandlerIgnoresOtherEvents(t *testing.T) {
	recorder := &stubRecorder{}
	h := NewTrackingHandler(recorder, nil)

	require.NoError(t, h.Handle(context.Background(), Message{EventType: "location.recorded", Payload: []byte(`{}`)}))
	require.NoError(t, h.Handle(context.Background(), Message{EventType: DefaultEventType, Payload: []byte(`[1,2]`)}))
	require.Empty(t, recorder.fixes)
}
