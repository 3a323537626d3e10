package domain

import "time"

// HealthMetric identifies a quantity type read from the health data store.
type HealthMetric string

const (
	MetricWalkingDistance HealthMetric = "distance_walking_running"
	MetricStepCount       HealthMetric = "step_count"
)

// HealthUnit is the unit a health sample value is expressed in.
type HealthUnit string

const (
	UnitMeters HealthUnit = "meters"
	UnitCount  HealthUnit = "count"
)

// Unit returns the canonical unit for the metric, or "" for unknown metrics.
func (m HealthMetric) Unit() HealthUnit {
	switch m {
	case MetricWalkingDistance:
		return UnitMeters
	case MetricStepCount:
		return UnitCount
	default:
		return ""
	}
}

// Known reports whether the metric is supported.
func (m HealthMetric) Known() bool {
	return m.Unit() != ""
}

// HealthSample is a quantity sample owned by the health data store.
type HealthSample struct {
	ID        string
	UserID    string
	Metric    HealthMetric
	StartTime time.Time
	Value     float64
	Unit      HealthUnit
}
