// Package api exposes HTTP handlers for the trackme service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"example.com/trackme/internal/auth"
	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/export"
	"example.com/trackme/internal/health"
	"example.com/trackme/internal/persistence"
	"example.com/trackme/internal/platform/logger"
	"example.com/trackme/internal/tracking"
	"example.com/trackme/internal/weekly"
)

const weekLayout = "2006-01-02"

// Services groups the collaborators the handlers delegate to.
type Services struct {
	Summary   *weekly.SummaryService
	Tracker   *tracking.Tracker
	Health    *health.Service
	Exporter  *export.Exporter
	Locations domain.LocationStore
}

// Handler coordinates HTTP requests with the trackme services.
type Handler struct {
	svc Services
	log *logger.Logger
	now func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithClock overrides the clock used to stamp exports.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(svc Services, opts ...Option) *Handler {
	h := &Handler{svc: svc, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "api")
	return h
}

// Router returns a router with every endpoint registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/summary", auth.RequireScope(auth.ScopeLocationsRead, http.HandlerFunc(h.summary))).Methods(http.MethodGet)
	v1.Handle("/locations", auth.RequireScope(auth.ScopeLocationsWrite, http.HandlerFunc(h.recordLocation))).Methods(http.MethodPost)
	v1.Handle("/locations", auth.RequireScope(auth.ScopeLocationsRead, http.HandlerFunc(h.listLocations))).Methods(http.MethodGet)
	v1.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	v1.Handle("/settings", auth.RequireScope(auth.ScopeSettingsWrite, http.HandlerFunc(h.putSettings))).Methods(http.MethodPut)
	v1.Handle("/tracking/start", auth.RequireScope(auth.ScopeSettingsWrite, http.HandlerFunc(h.startTracking))).Methods(http.MethodPost)
	v1.Handle("/tracking/stop", auth.RequireScope(auth.ScopeSettingsWrite, http.HandlerFunc(h.stopTracking))).Methods(http.MethodPost)
	v1.Handle("/health/samples", auth.RequireScope(auth.ScopeHealthWrite, http.HandlerFunc(h.ingestHealth))).Methods(http.MethodPost)
	v1.Handle("/health/authorize", auth.RequireScope(auth.ScopeHealthWrite, http.HandlerFunc(h.authorizeHealth))).Methods(http.MethodPost)
	v1.Handle("/exports", auth.RequireScope(auth.ScopeLocationsRead, http.HandlerFunc(h.createExport))).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	weekStart, err := h.resolveWeek(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	summary, err := h.svc.Summary.Summary(r.Context(), userID, weekStart)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// resolveWeek accepts either week=YYYY-MM-DD (any day inside the week) or offset=N weeks
// relative to the current week. Neither means the current week.
func (h *Handler) resolveWeek(r *http.Request) (time.Time, error) {
	cal := h.svc.Summary.Calendar()
	q := r.URL.Query()
	if raw := q.Get("week"); raw != "" {
		day, err := time.ParseInLocation(weekLayout, raw, cal.Location())
		if err != nil {
			return time.Time{}, errors.New("week must be formatted YYYY-MM-DD")
		}
		return cal.WeekStart(day), nil
	}
	current := h.svc.Summary.CurrentWeekStart()
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return time.Time{}, errors.New("offset must be an integer")
		}
		if offset > 0 {
			return time.Time{}, errors.New("offset must not point into the future")
		}
		return cal.Shift(current, offset), nil
	}
	return current, nil
}

func (h *Handler) recordLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	var req RecordLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	sample, err := h.svc.Tracker.Record(r.Context(), domain.LocationFix{
		UserID:             userID,
		RecordedAt:         req.RecordedAt,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		HorizontalAccuracy: req.HorizontalAccuracy,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocationView(sample))
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	limit := persistence.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	samples, next, err := h.svc.Locations.ListLocations(r.Context(), userID, cursor, persistence.ClampLimit(limit))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]LocationView, 0, len(samples))
	for _, s := range samples {
		items = append(items, toLocationView(s))
	}
	writeJSON(w, http.StatusOK, ListLocationsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	settings, err := h.svc.Tracker.Status(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	patch := tracking.SettingsPatch{
		DistanceFilterMeters: req.DistanceFilterMeters,
		TrackingEnabled:      req.TrackingEnabled,
	}
	if req.DesiredAccuracy != "" {
		accuracy := domain.Accuracy(req.DesiredAccuracy)
		patch.DesiredAccuracy = &accuracy
	}
	settings, err := h.svc.Tracker.Apply(r.Context(), userID, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) startTracking(w http.ResponseWriter, r *http.Request) {
	h.toggleTracking(w, r, true)
}

func (h *Handler) stopTracking(w http.ResponseWriter, r *http.Request) {
	h.toggleTracking(w, r, false)
}

func (h *Handler) toggleTracking(w http.ResponseWriter, r *http.Request, enable bool) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	toggle := h.svc.Tracker.Stop
	if enable {
		toggle = h.svc.Tracker.Start
	}
	settings, err := toggle(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) ingestHealth(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	var req IngestHealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "samples must not be empty")
		return
	}

	samples := make([]domain.HealthSample, 0, len(req.Samples))
	for _, s := range req.Samples {
		samples = append(samples, domain.HealthSample{
			Metric:    domain.HealthMetric(s.Metric),
			StartTime: s.StartTime,
			Value:     s.Value,
			Unit:      domain.HealthUnit(s.Unit),
		})
	}

	stored, err := h.svc.Health.Ingest(r.Context(), userID, samples)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IngestHealthResponse{Accepted: len(stored)})
}

func (h *Handler) authorizeHealth(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	var req AuthorizeHealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	metrics := make([]domain.HealthMetric, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		metrics = append(metrics, domain.HealthMetric(m))
	}
	settings, err := h.svc.Health.Grant(r.Context(), userID, metrics)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Exporter.Export(r.Context(), userID, h.now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	return claims.Subject, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTrackingDisabled):
		writeError(w, http.StatusConflict, "tracking_disabled", err.Error())
	case errors.Is(err, domain.ErrFixRejected):
		writeError(w, http.StatusUnprocessableEntity, "fix_rejected", err.Error())
	case errors.Is(err, domain.ErrInvalidSample), errors.Is(err, domain.ErrInvalidSettings):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrAuthorizationDenied):
		writeError(w, http.StatusForbidden, "authorization_denied", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// RecordLocationRequest is the payload for POST /v1/locations.
type RecordLocationRequest struct {
	RecordedAt         time.Time `json:"recorded_at"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
}

// LocationView is the JSON form of a stored sample.
type LocationView struct {
	ID                 string    `json:"id"`
	RecordedAt         time.Time `json:"recorded_at"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
}

// ListLocationsResponse packages list results.
type ListLocationsResponse struct {
	Items      []LocationView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// UpdateSettingsRequest is the payload for PUT /v1/settings. Omitted fields keep their current value.
type UpdateSettingsRequest struct {
	DistanceFilterMeters *float64 `json:"distance_filter_m,omitempty"`
	DesiredAccuracy      string   `json:"desired_accuracy,omitempty"`
	TrackingEnabled      *bool    `json:"tracking_enabled,omitempty"`
}

// SettingsView is the JSON form of tracking settings.
type SettingsView struct {
	TrackingEnabled      bool      `json:"tracking_enabled"`
	DistanceFilterMeters float64   `json:"distance_filter_m"`
	DesiredAccuracy      string    `json:"desired_accuracy"`
	HealthReadTypes      []string  `json:"health_read_types"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`
}

// HealthSampleInput is one sample in POST /v1/health/samples.
type HealthSampleInput struct {
	Metric    string    `json:"metric"`
	StartTime time.Time `json:"start_time"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// IngestHealthRequest is the payload for POST /v1/health/samples.
type IngestHealthRequest struct {
	Samples []HealthSampleInput `json:"samples"`
}

// IngestHealthResponse reports how many samples were stored.
type IngestHealthResponse struct {
	Accepted int `json:"accepted"`
}

// AuthorizeHealthRequest is the payload for POST /v1/health/authorize.
type AuthorizeHealthRequest struct {
	Metrics []string `json:"metrics"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toLocationView(s domain.LocationSample) LocationView {
	return LocationView{
		ID:                 s.ID,
		RecordedAt:         s.RecordedAt,
		Latitude:           s.Latitude,
		Longitude:          s.Longitude,
		HorizontalAccuracy: s.HorizontalAccuracy,
	}
}

func toSettingsView(s domain.Settings) SettingsView {
	types := make([]string, 0, len(s.HealthReadTypes))
	for _, m := range s.HealthReadTypes {
		types = append(types, string(m))
	}
	return SettingsView{
		TrackingEnabled:      s.TrackingEnabled,
		DistanceFilterMeters: s.DistanceFilterMeters,
		DesiredAccuracy:      string(s.DesiredAccuracy),
		HealthReadTypes:      types,
		UpdatedAt:            s.UpdatedAt,
	}
}
