package weekly

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"example.com/trackme/internal/calendar"
	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/observability"
	"example.com/trackme/internal/platform/logger"
)

// ChartSeries is a pre-aggregated 7-point series ready for a chart surface.
type ChartSeries struct {
	Labels     [domain.DaysPerWeek]string `json:"labels"`
	Values     domain.DailyTotals         `json:"values"`
	Total      float64                    `json:"total"`
	Accent     string                     `json:"accent"`
	NoDataText string                     `json:"no_data_text"`
}

// WeeklySummary is the result of one summary request.
type WeeklySummary struct {
	WeekStart  time.Time   `json:"week_start"`
	WeekEnd    time.Time   `json:"week_end"`
	Title      string      `json:"title"`
	CanAdvance bool        `json:"can_advance"`
	Traveling  ChartSeries `json:"traveling_distance"`
	Walking    ChartSeries `json:"walking_distance"`
	Steps      ChartSeries `json:"step_count"`
	Degraded   []string    `json:"degraded,omitempty"`
}

// SummaryCache stores summaries of weeks that have fully elapsed.
type SummaryCache interface {
	Get(ctx context.Context, userID string, weekStart time.Time) (*WeeklySummary, bool, error)
	Set(ctx context.Context, userID string, summary WeeklySummary) error
	Delete(ctx context.Context, userID string, weekStarts ...time.Time) error
	Purge(ctx context.Context, userID string) error
}

// SummaryService fetches a week of data from the collaborators and aggregates it.
type SummaryService struct {
	locations  domain.LocationStore
	health     domain.HealthDataService
	agg        *Aggregator
	cache      SummaryCache
	log        *logger.Logger
	now        func() time.Time
	maxRetries int
	newBackOff func() backoff.BackOff
}

// Option configures optional behaviour for the SummaryService.
type Option func(*SummaryService)

// WithCache enables caching of elapsed weeks.
func WithCache(cache SummaryCache) Option {
	return func(s *SummaryService) {
		s.cache = cache
	}
}

// WithLogger overrides the logger used to report degraded fetches.
func WithLogger(log *logger.Logger) Option {
	return func(s *SummaryService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *SummaryService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetry sets the number of retries for a failed query and the backoff policy between them.
func WithRetry(maxRetries int, newBackOff func() backoff.BackOff) Option {
	return func(s *SummaryService) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// NewSummaryService wires the collaborators. health may be nil, in which case walking and step series stay empty.
func NewSummaryService(locations domain.LocationStore, health domain.HealthDataService, agg *Aggregator, opts ...Option) *SummaryService {
	s := &SummaryService{
		locations:  locations,
		health:     health,
		agg:        agg,
		log:        logger.Nop(),
		now:        time.Now,
		maxRetries: 2,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "weekly_summary")
	return s
}

// Calendar exposes the calendar used to resolve weeks.
func (s *SummaryService) Calendar() calendar.Calendar {
	return s.agg.Calendar()
}

// CurrentWeekStart resolves the week containing now.
func (s *SummaryService) CurrentWeekStart() time.Time {
	return s.agg.WeekStart(s.now())
}

// Summary builds the weekly summary for the week containing weekStart.
// Failed queries degrade to empty buckets; only cancellation of ctx is returned as an error.
func (s *SummaryService) Summary(ctx context.Context, userID string, weekStart time.Time) (WeeklySummary, error) {
	started := time.Now()
	defer func() { observability.ObserveSummary(time.Since(started)) }()

	cal := s.agg.Calendar()
	window := cal.Window(weekStart)
	now := s.now()
	cacheable := s.cache != nil && !window.Next.After(now)

	if cacheable {
		cached, ok, err := s.cache.Get(ctx, userID, window.Start)
		switch {
		case err != nil:
			observability.RecordCacheLookup("error")
			s.log.Warn("summary cache lookup failed", "user_id", userID, "week_start", window.Start, "error", err)
		case ok:
			observability.RecordCacheLookup("hit")
			cached.Title = cal.Title(window.Start, now)
			cached.CanAdvance = cal.CanAdvance(window.Start, now)
			return *cached, nil
		default:
			observability.RecordCacheLookup("miss")
		}
	}

	var (
		byDay    [domain.DaysPerWeek][]domain.LocationSample
		walking  []domain.HealthSample
		steps    []domain.HealthSample
		mu       sync.Mutex
		degraded []string
	)
	markDegraded := func(label string) {
		mu.Lock()
		degraded = append(degraded, label)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range window.Days {
		day := window.FetchRange(i)
		g.Go(func() error {
			samples, err := s.fetchLocations(gctx, userID, day)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				observability.RecordFetchFailure("locations")
				s.log.Warn("location fetch failed, using empty bucket", "user_id", userID, "day", domain.Weekdays[i], "error", err)
				markDegraded("traveling:" + domain.Weekdays[i])
				return nil
			}
			byDay[i] = samples
			return nil
		})
	}
	for _, target := range []struct {
		metric domain.HealthMetric
		label  string
		out    *[]domain.HealthSample
	}{
		{domain.MetricWalkingDistance, "walking", &walking},
		{domain.MetricStepCount, "steps", &steps},
	} {
		g.Go(func() error {
			samples, err := s.fetchHealth(gctx, userID, target.metric, window)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, domain.ErrAuthorizationDenied) {
					s.log.Debug("health data not authorized, using empty series", "user_id", userID, "metric", target.metric)
					markDegraded(target.label + ":unauthorized")
					return nil
				}
				observability.RecordFetchFailure(string(target.metric))
				s.log.Warn("health fetch failed, using empty series", "user_id", userID, "metric", target.metric, "error", err)
				markDegraded(target.label)
				return nil
			}
			*target.out = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WeeklySummary{}, err
	}
	sort.Strings(degraded)

	summary := WeeklySummary{
		WeekStart:  window.Start,
		WeekEnd:    window.Next,
		Title:      cal.Title(window.Start, now),
		CanAdvance: cal.CanAdvance(window.Start, now),
		Traveling:  newSeries(s.agg.Distances(window, byDay), "red", "No Traveling Data Provided."),
		Walking:    newSeries(s.agg.HealthValues(window, walking), "green", "No Walking Data Provided."),
		Steps:      newSeries(s.agg.HealthValues(window, steps), "blue", "No Steps Data Provided."),
		Degraded:   degraded,
	}

	// Degraded weeks, unauthorized series included, are recomputed next time.
	if cacheable && len(degraded) == 0 {
		if err := s.cache.Set(ctx, userID, summary); err != nil {
			s.log.Warn("summary cache store failed", "user_id", userID, "week_start", window.Start, "error", err)
		}
	}
	return summary, nil
}

func (s *SummaryService) fetchLocations(ctx context.Context, userID string, day calendar.Interval) ([]domain.LocationSample, error) {
	var out []domain.LocationSample
	err := s.retry(ctx, func() error {
		samples, err := s.locations.QueryLocations(ctx, userID, day.Start, day.End)
		if err != nil {
			return fmt.Errorf("%w: query locations: %v", domain.ErrFetchFailed, err)
		}
		out = samples
		return nil
	})
	return out, err
}

func (s *SummaryService) fetchHealth(ctx context.Context, userID string, metric domain.HealthMetric, window calendar.WeekWindow) ([]domain.HealthSample, error) {
	if s.health == nil {
		return nil, domain.ErrAuthorizationDenied
	}
	ok, err := s.health.Authorize(ctx, userID, []domain.HealthMetric{metric})
	if err != nil {
		return nil, fmt.Errorf("%w: authorize %s: %v", domain.ErrFetchFailed, metric, err)
	}
	if !ok {
		return nil, domain.ErrAuthorizationDenied
	}

	var out []domain.HealthSample
	err = s.retry(ctx, func() error {
		samples, err := s.health.Query(ctx, userID, metric, window.Start, window.Next)
		if err != nil {
			if errors.Is(err, domain.ErrAuthorizationDenied) {
				return err
			}
			return fmt.Errorf("%w: query %s: %v", domain.ErrFetchFailed, metric, err)
		}
		out = samples
		return nil
	})
	return out, err
}

func (s *SummaryService) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrAuthorizationDenied) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func newSeries(values domain.DailyTotals, accent, noData string) ChartSeries {
	return ChartSeries{
		Labels:     domain.Weekdays,
		Values:     values,
		Total:      values.Sum(),
		Accent:     accent,
		NoDataText: noData,
	}
}
