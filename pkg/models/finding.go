package models

// FindingKind classifies a statistically derived statement.
type FindingKind string

const (
	FindingValue         FindingKind = "value"
	FindingDelta         FindingKind = "delta"
	FindingPercentChange FindingKind = "percent_change"
	FindingTrend         FindingKind = "trend"
	FindingAnomaly       FindingKind = "anomaly"
)

// TrendLabel classifies direction of change within a tolerance band.
type TrendLabel string

const (
	TrendIncreasing TrendLabel = "increasing"
	TrendDecreasing TrendLabel = "decreasing"
	TrendFlat       TrendLabel = "flat"
)

// Finding is one concrete, computed statistical statement derived from query
// results. Produced deterministically; identical inputs yield identical
// findings.
type Finding struct {
	Kind   FindingKind `json:"kind"`
	Metric string      `json:"metric"`
	// Value is the computed number. Undefined for percent_change when the
	// baseline is zero; Defined is false and Formatted reads "N/A" then.
	Value    float64  `json:"value"`
	Defined  bool     `json:"defined"`
	Baseline *float64 `json:"baseline,omitempty"`
	Trend    TrendLabel `json:"trend,omitempty"`
	// Statement is the human-readable form, e.g. "total_amount rose +50.0%
	// versus the baseline window".
	Statement string `json:"statement"`
	// Formatted is the display value ("+50.0%", "N/A", "1234.00").
	Formatted string `json:"formatted"`
	// Sigma is set for anomaly findings: how many standard deviations the
	// value sits from the baseline mean.
	Sigma float64 `json:"sigma,omitempty"`
	// GroupKey identifies the group a per-group finding belongs to, when the
	// query was grouped.
	GroupKey string `json:"group_key,omitempty"`
}
