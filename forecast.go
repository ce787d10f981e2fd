package batchgate

import (
	"slices"
	"sync"
	"time"
)

const (
	// forecastMinSamples is the history size below which PredictTokens
	// falls back to the configured default estimate.
	forecastMinSamples = 3

	// forecastMaxSamples bounds how far back PredictTokens looks.
	forecastMaxSamples = 50

	// forecastTrimAt is the sample count from which the mean is trimmed.
	forecastTrimAt = 10

	// forecastFloor is the minimum prediction ever returned from history.
	forecastFloor = 100

	// peakLookbackDays is the default window for peak hour detection.
	peakLookbackDays = 7
)

// UsageRecord is one completed or failed unit of backend work.
type UsageRecord struct {
	TaskType       string
	Tokens         int64
	ProcessingTime time.Duration
	Timestamp      time.Time
	Success        bool
}

// Forecaster keeps a bounded rolling history of usage records and derives
// token predictions, daily usage projections, and peak hour reports from it.
type Forecaster struct {
	mu              sync.Mutex
	records         []UsageRecord
	limit           int
	defaultEstimate int64
	tally           *usageTally
	now             func() time.Time
}

// UsageStats summarizes the recorded history.
type UsageStats struct {
	Records              int
	Successes            int
	Failures             int
	SuccessRate          float64 // fraction of records that succeeded, 0..1
	AvgTokens            float64 // mean tokens across all records
	PredictedDailyTokens float64
	PeakHours            []int
	TodayByTaskType      map[string]int64 // tokens since local midnight, per task type
}

// NewForecaster creates a forecaster that keeps at most historyLimit
// records and answers defaultEstimate while history is thin.
func NewForecaster(historyLimit int, defaultEstimate int64) *Forecaster {
	return &Forecaster{
		records:         make([]UsageRecord, 0, historyLimit),
		limit:           historyLimit,
		defaultEstimate: defaultEstimate,
		tally:           newUsageTally(),
		now:             time.Now,
	}
}

// Record appends a usage record, evicting the oldest once the history is
// full. Failed executions are recorded with zero tokens so failure rates
// stay visible without polluting token predictions.
func (f *Forecaster) Record(taskType string, tokens int64, processingTime time.Duration, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := UsageRecord{
		TaskType:       taskType,
		Tokens:         tokens,
		ProcessingTime: processingTime,
		Timestamp:      f.now(),
		Success:        success,
	}
	f.tally.record(taskType, tokens, rec.Timestamp)

	if f.limit > 0 && len(f.records) >= f.limit {
		copy(f.records, f.records[1:])
		f.records[len(f.records)-1] = rec
		return
	}
	f.records = append(f.records, rec)
}

// PredictTokens estimates the token cost of the next request of the given
// task type using a trimmed mean over recent successful executions. With
// fewer than forecastMinSamples data points it returns the default
// estimate; predictions from history never drop below forecastFloor.
func (f *Forecaster) PredictTokens(taskType string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	samples := make([]int64, 0, forecastMaxSamples)
	for i := len(f.records) - 1; i >= 0 && len(samples) < forecastMaxSamples; i-- {
		rec := f.records[i]
		if rec.Success && rec.TaskType == taskType {
			samples = append(samples, rec.Tokens)
		}
	}

	if len(samples) < forecastMinSamples {
		return f.defaultEstimate
	}

	slices.Sort(samples)
	if len(samples) >= forecastTrimAt {
		trim := len(samples) / 10
		samples = samples[trim : len(samples)-trim]
	}

	var sum int64
	for _, s := range samples {
		sum += s
	}
	avg := sum / int64(len(samples))
	if avg < forecastFloor {
		return forecastFloor
	}
	return avg
}

// PredictDailyUsage projects today's total token consumption by linear
// extrapolation of usage since local midnight. Returns 0 when nothing has
// been consumed today.
func (f *Forecaster) PredictDailyUsage() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.predictDailyLocked()
}

func (f *Forecaster) predictDailyLocked() float64 {
	now := f.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var tokens int64
	for _, rec := range f.records {
		if !rec.Timestamp.Before(midnight) {
			tokens += rec.Tokens
		}
	}
	if tokens == 0 {
		return 0
	}

	elapsed := now.Sub(midnight).Hours()
	if elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed * 24
}

// PeakHours returns up to three hours of day (0-23) with the highest token
// consumption over the past daysBack days, busiest first. Ties resolve to
// the earlier hour. Hours with no usage never appear.
func (f *Forecaster) PeakHours(daysBack int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakHoursLocked(daysBack)
}

func (f *Forecaster) peakHoursLocked(daysBack int) []int {
	cutoff := f.now().AddDate(0, 0, -daysBack)

	totals := make(map[int]int64)
	for _, rec := range f.records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		totals[rec.Timestamp.Hour()] += rec.Tokens
	}

	type hourTotal struct {
		hour   int
		tokens int64
	}
	ranked := make([]hourTotal, 0, len(totals))
	for hour, tokens := range totals {
		if tokens > 0 {
			ranked = append(ranked, hourTotal{hour, tokens})
		}
	}
	slices.SortFunc(ranked, func(a, b hourTotal) int {
		if a.tokens != b.tokens {
			if a.tokens > b.tokens {
				return -1
			}
			return 1
		}
		return a.hour - b.hour
	})

	n := min(len(ranked), 3)
	hours := make([]int, n)
	for i := 0; i < n; i++ {
		hours[i] = ranked[i].hour
	}
	return hours
}

// Stats summarizes the recorded history.
func (f *Forecaster) Stats() UsageStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := UsageStats{Records: len(f.records)}

	var tokens int64
	for _, rec := range f.records {
		if rec.Success {
			stats.Successes++
		} else {
			stats.Failures++
		}
		tokens += rec.Tokens
	}
	if stats.Records > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Records)
		stats.AvgTokens = float64(tokens) / float64(stats.Records)
	}
	stats.PredictedDailyTokens = f.predictDailyLocked()
	stats.PeakHours = f.peakHoursLocked(peakLookbackDays)
	stats.TodayByTaskType = f.tally.snapshot(f.now())
	return stats
}
