package models

import "time"

// Granularity controls trend bucketing at read time
type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityWeekly Granularity = "weekly"
)

// Trend metric names
const (
	MetricCommitFrequency = "commit_frequency"
	MetricLinesOfCode     = "lines_of_code"
	MetricComplexity      = "complexity"
	MetricDependencies    = "dependencies"
)

// TrendPoint is one (bucket, value) sample of a metric series.
// Series are append-only and ordered by bucket.
type TrendPoint struct {
	Bucket time.Time `json:"bucket"`
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
}

// DependencyDelta records a change to a dependency manifest in one commit
type DependencyDelta struct {
	CommitSHA string    `json:"commit_sha"`
	Manifest  string    `json:"manifest"`
	Added     []string  `json:"added"`
	Removed   []string  `json:"removed"`
	At        time.Time `json:"at"`
}

// CommitPatterns summarizes commit-message and activity habits
type CommitPatterns struct {
	TotalCommits     int            `json:"total_commits"`
	MessageTypes     map[string]int `json:"message_types"`
	AvgMessageLength float64        `json:"average_message_length"`
	HourlyCommits    map[int]int    `json:"hourly_distribution"`
	WeekdayCommits   map[string]int `json:"daily_distribution"`
	MostActiveHour   int            `json:"most_active_hour"`
	MostActiveDay    string         `json:"most_active_day"`
}
