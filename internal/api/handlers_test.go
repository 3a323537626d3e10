package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trackme/internal/auth"
	"example.com/trackme/internal/calendar"
	"example.com/trackme/internal/export"
	"example.com/trackme/internal/health"
	"example.com/trackme/internal/persistence/memory"
	"example.com/trackme/internal/platform/logger"
	"example.com/trackme/internal/tracking"
	"example.com/trackme/internal/weekly"
)

var apiNow = time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)

var allScopes = []string{
	auth.ScopeLocationsRead,
	auth.ScopeLocationsWrite,
	auth.ScopeSettingsWrite,
	auth.ScopeHealthWrite,
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store, string) {
	t.Helper()
	store := memory.NewStore()
	clock := func() time.Time { return apiNow }
	dir := t.TempDir()

	healthSvc := health.NewService(store, store, logger.Nop())
	svc := Services{
		Summary:   weekly.NewSummaryService(store, healthSvc, weekly.NewAggregator(calendar.New(time.UTC)), weekly.WithClock(clock)),
		Tracker:   tracking.NewTracker(store, store, tracking.WithClock(clock)),
		Health:    healthSvc,
		Exporter:  export.NewExporter(store, dir, time.UTC, logger.Nop()),
		Locations: store,
	}
	return NewHandler(svc, WithClock(clock)).Router(), store, dir
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	claims := &auth.Claims{
		Subject:   "user-1",
		Scopes:    make(map[string]struct{}),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	for _, s := range scopes {
		claims.Scopes[s] = struct{}{}
	}
	req = req.WithContext(auth.WithClaims(req.Context(), claims))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
}

func TestRecordLocationRequiresTrackingEnabled(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/v1/locations", RecordLocationRequest{
		RecordedAt: apiNow, Latitude: 52.5, Longitude: 13.4, HorizontalAccuracy: 3,
	}, allScopes...)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	var problem map[string]string
	decode(t, rr, &problem)
	require.Equal(t, "tracking_disabled", problem["type"])
}

func TestRecordAndListLocations(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/v1/tracking/start", nil, allScopes...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	for i := 0; i < 3; i++ {
		rr = do(t, router, http.MethodPost, "/v1/locations", RecordLocationRequest{
			RecordedAt:         apiNow.Add(time.Duration(i) * time.Minute),
			Latitude:           52.5 + float64(i)*0.01,
			Longitude:          13.4,
			HorizontalAccuracy: 3,
		}, allScopes...)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, "/v1/locations?limit=2", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var page ListLocationsResponse
	decode(t, rr, &page)
	require.Len(t, page.Items, 2)
	require.True(t, page.Items[0].RecordedAt.After(page.Items[1].RecordedAt), "newest first")
	require.NotEmpty(t, page.NextCursor)

	rr = do(t, router, http.MethodGet, "/v1/locations?limit=2&cursor="+page.NextCursor, nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rest ListLocationsResponse
	decode(t, rr, &rest)
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)
}

func TestRecordLocationRejectsInaccurateFix(t *testing.T) {
	router, _, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/v1/tracking/start", nil, allScopes...)

	rr := do(t, router, http.MethodPost, "/v1/locations", RecordLocationRequest{
		RecordedAt: apiNow, Latitude: 1, Longitude: 1, HorizontalAccuracy: 250,
	}, allScopes...)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListLocationsRejectsBadCursor(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/v1/locations?cursor=not-a-cursor!!", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestScopesAreEnforced(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/v1/locations", RecordLocationRequest{RecordedAt: apiNow}, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodPut, "/v1/settings", UpdateSettingsRequest{DesiredAccuracy: "best"}, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusForbidden, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/v1/settings", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var initial SettingsView
	decode(t, rr, &initial)
	require.False(t, initial.TrackingEnabled)
	require.Equal(t, "best", initial.DesiredAccuracy)

	enabled := true
	filter := 25.0
	rr = do(t, router, http.MethodPut, "/v1/settings", UpdateSettingsRequest{
		DistanceFilterMeters: &filter,
		DesiredAccuracy:      "hundred_meters",
		TrackingEnabled:      &enabled,
	}, auth.ScopeSettingsWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated SettingsView
	decode(t, rr, &updated)
	require.True(t, updated.TrackingEnabled)
	require.Equal(t, 25.0, updated.DistanceFilterMeters)
	require.Equal(t, "hundred_meters", updated.DesiredAccuracy)

	rr = do(t, router, http.MethodPut, "/v1/settings", UpdateSettingsRequest{DesiredAccuracy: "somewhere"}, auth.ScopeSettingsWrite)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPost, "/v1/tracking/stop", nil, auth.ScopeSettingsWrite)
	require.Equal(t, http.StatusOK, rr.Code)
	var stopped SettingsView
	decode(t, rr, &stopped)
	require.False(t, stopped.TrackingEnabled)
	require.Equal(t, "hundred_meters", stopped.DesiredAccuracy)
}

func TestSettingsUpdateKeepsOmittedFields(t *testing.T) {
	router, _, _ := newTestRouter(t)

	enabled := true
	filter := 40.0
	rr := do(t, router, http.MethodPut, "/v1/settings", UpdateSettingsRequest{
		DistanceFilterMeters: &filter,
		DesiredAccuracy:      "kilometer",
		TrackingEnabled:      &enabled,
	}, auth.ScopeSettingsWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPut, "/v1/settings", map[string]string{"desired_accuracy": "nearest_ten_meters"}, auth.ScopeSettingsWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated SettingsView
	decode(t, rr, &updated)
	require.Equal(t, 40.0, updated.DistanceFilterMeters)
	require.Equal(t, "nearest_ten_meters", updated.DesiredAccuracy)
	require.True(t, updated.TrackingEnabled)

	zero := 0.0
	rr = do(t, router, http.MethodPut, "/v1/settings", UpdateSettingsRequest{DistanceFilterMeters: &zero}, auth.ScopeSettingsWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &updated)
	require.Zero(t, updated.DistanceFilterMeters, "an explicit zero disables the filter")
	require.Equal(t, "nearest_ten_meters", updated.DesiredAccuracy)
}

func TestSummaryIncludesAuthorizedHealthData(t *testing.T) {
	router, _, _ := newTestRouter(t)
	monday := time.Date(2024, time.May, 6, 8, 0, 0, 0, time.UTC)

	rr := do(t, router, http.MethodPost, "/v1/health/samples", IngestHealthRequest{Samples: []HealthSampleInput{
		{Metric: "step_count", StartTime: monday, Value: 1200},
		{Metric: "step_count", StartTime: monday.Add(time.Hour), Value: 300},
	}}, auth.ScopeHealthWrite)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// Not yet authorized: the series stays empty.
	rr = do(t, router, http.MethodGet, "/v1/summary", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var before weekly.WeeklySummary
	decode(t, rr, &before)
	require.True(t, before.Steps.Values.IsZero())
	require.Contains(t, before.Degraded, "steps:unauthorized")

	rr = do(t, router, http.MethodPost, "/v1/health/authorize", AuthorizeHealthRequest{Metrics: []string{"step_count", "distance_walking_running"}}, auth.ScopeHealthWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/v1/summary?week=2024-05-07", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var after weekly.WeeklySummary
	decode(t, rr, &after)
	require.Equal(t, "This Week", after.Title)
	require.Equal(t, time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), after.WeekStart.UTC())
	require.Equal(t, 1500.0, after.Steps.Values[1])
	require.Empty(t, after.Degraded)
}

func TestSummaryOffset(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/v1/summary?offset=-1", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var summary weekly.WeeklySummary
	decode(t, rr, &summary)
	require.Equal(t, "Last Week", summary.Title)
	require.True(t, summary.CanAdvance)

	rr = do(t, router, http.MethodGet, "/v1/summary?offset=1", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/v1/summary?week=05/07/2024", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthRejectsUnknownMetric(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/v1/health/authorize", AuthorizeHealthRequest{Metrics: []string{"heart_rate"}}, auth.ScopeHealthWrite)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPost, "/v1/health/samples", IngestHealthRequest{Samples: []HealthSampleInput{
		{Metric: "step_count", StartTime: apiNow, Value: -1},
	}}, auth.ScopeHealthWrite)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreateExportWritesFile(t *testing.T) {
	router, _, dir := newTestRouter(t)
	do(t, router, http.MethodPost, "/v1/tracking/start", nil, allScopes...)
	do(t, router, http.MethodPost, "/v1/locations", RecordLocationRequest{
		RecordedAt: apiNow, Latitude: 10, Longitude: 20, HorizontalAccuracy: 2,
	}, allScopes...)

	rr := do(t, router, http.MethodPost, "/v1/exports", nil, auth.ScopeLocationsRead)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result export.Result
	decode(t, rr, &result)
	require.Equal(t, 1, result.Points)
	require.True(t, strings.HasPrefix(result.Path, dir))
	require.True(t, strings.HasSuffix(result.Path, "2024-05-08_12:00:00_MyTrack.json"))

	raw, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	var points []export.Point
	require.NoError(t, json.Unmarshal(raw, &points))
	require.Len(t, points, 1)
}

func TestHealthzBypassesAuthMiddleware(t *testing.T) {
	router, _, _ := newTestRouter(t)
	cfg := auth.Config{Secret: "test-secret", Issuer: "trackme.test"}
	secured := auth.NewMiddleware(cfg).Wrap(router)

	rr := httptest.NewRecorder()
	secured.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	secured.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/settings", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := auth.Issue(cfg, "user-9", []string{auth.ScopeLocationsRead}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	secured.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
