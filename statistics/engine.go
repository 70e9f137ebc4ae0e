package statistics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/steffengr/feature-store-api/compute"
	"github.com/steffengr/feature-store-api/dataframe"
	"github.com/steffengr/feature-store-api/entity"
)

const histogramBuckets = 10

// MetadataStore persists and retrieves statistics snapshots, typically the
// metadata service.
type MetadataStore interface {
	SaveStatistics(ctx context.Context, fg *entity.FeatureGroup, stats *entity.Statistics) error
	LastStatistics(ctx context.Context, fg *entity.FeatureGroup) (*entity.Statistics, error)
	GetStatistics(ctx context.Context, fg *entity.FeatureGroup, commitTime string) (*entity.Statistics, error)
}

// Engine implements entity.StatisticsEngine: it computes descriptive
// statistics over a dataframe and persists the snapshot through the
// metadata store.
type Engine struct {
	store  MetadataStore
	logger *zap.Logger
}

func NewEngine(store MetadataStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// ComputeStatistics profiles the dataframe, honoring the feature group's
// column filter and histogram/correlation toggles, and persists the result.
func (e *Engine) ComputeStatistics(ctx context.Context, fg *entity.FeatureGroup, df *dataframe.DataFrame) (*entity.Statistics, error) {
	cfg := fg.StatisticsConfig()

	included := func(string) bool { return true }
	if len(cfg.Columns) > 0 {
		set := make(map[string]bool, len(cfg.Columns))
		for _, col := range cfg.Columns {
			set[col] = true
		}
		included = func(name string) bool { return set[name] }
	}

	stats := &entity.Statistics{
		CommitTime: compute.FormatWallclockTime(time.Now()),
	}
	rawColumns := make(map[string][]interface{})
	numericColumns := make(map[string]bool)
	var profiledColumns []string

	for _, col := range df.Columns {
		if !included(col) {
			continue
		}
		values, _ := df.Column(col)
		featStats, numeric := profileColumn(col, values, cfg.Histograms)
		stats.FeatureStatistics = append(stats.FeatureStatistics, featStats)
		profiledColumns = append(profiledColumns, col)
		rawColumns[col] = values
		numericColumns[col] = numeric
	}

	if cfg.Correlations {
		for i := 0; i < len(profiledColumns); i++ {
			for j := i + 1; j < len(profiledColumns); j++ {
				a, b := profiledColumns[i], profiledColumns[j]
				if !numericColumns[a] || !numericColumns[b] {
					continue
				}
				// Pairs must come from the same row; rows where either
				// column is null carry no pair.
				xs, ys := alignedPairs(rawColumns[a], rawColumns[b])
				if len(xs) == 0 {
					continue
				}
				stats.Correlations = append(stats.Correlations, entity.Correlation{
					FeatureA: a,
					FeatureB: b,
					Value:    pearson(xs, ys),
				})
			}
		}
	}

	if err := e.store.SaveStatistics(ctx, fg, stats); err != nil {
		return nil, err
	}
	e.logger.Info("computed feature group statistics",
		zap.String("name", fg.Name),
		zap.Int("version", fg.Version),
		zap.String("commit_time", stats.CommitTime),
		zap.Int("features", len(stats.FeatureStatistics)),
	)
	return stats, nil
}

// GetLast returns the most recently computed snapshot.
func (e *Engine) GetLast(ctx context.Context, fg *entity.FeatureGroup) (*entity.Statistics, error) {
	return e.store.LastStatistics(ctx, fg)
}

// Get returns the snapshot computed at a specific commit time.
func (e *Engine) Get(ctx context.Context, fg *entity.FeatureGroup, commitTime string) (*entity.Statistics, error) {
	return e.store.GetStatistics(ctx, fg, commitTime)
}

// profileColumn computes the per-feature statistics of one column. The
// second return value reports whether the column is fully numeric over its
// non-null values.
func profileColumn(name string, values []interface{}, histograms bool) (entity.FeatureStatistics, bool) {
	featStats := entity.FeatureStatistics{
		Name:  name,
		Count: int64(len(values)),
	}

	distinct := make(map[string]bool)
	var floats []float64
	numeric := true
	for _, v := range values {
		if v == nil {
			featStats.NullCount++
			continue
		}
		distinct[fmt.Sprintf("%v", v)] = true
		if f, ok := toFloat(v); ok {
			floats = append(floats, f)
		} else {
			numeric = false
		}
	}
	featStats.Distinct = int64(len(distinct))

	if !numeric || len(floats) == 0 {
		return featStats, false
	}

	// Single pass over the values for min, max, mean and variance.
	n := float64(len(floats))
	minVal, maxVal := floats[0], floats[0]
	sum, sumSq := 0.0, 0.0
	for _, f := range floats {
		if f < minVal {
			minVal = f
		}
		if f > maxVal {
			maxVal = f
		}
		sum += f
		sumSq += f * f
	}
	mean := sum / n
	variance := (sumSq / n) - (mean * mean)
	if variance < 0 {
		variance = 0
	}
	stdDev := math.Sqrt(variance)

	featStats.Min = &minVal
	featStats.Max = &maxVal
	featStats.Mean = &mean
	featStats.StdDev = &stdDev

	if histograms && maxVal > minVal {
		featStats.Histogram = histogram(floats, minVal, maxVal)
	}
	return featStats, true
}

// alignedPairs extracts the row-aligned numeric value pairs of two columns,
// dropping every row where either side is null or non-numeric.
func alignedPairs(a, b []interface{}) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if a[i] == nil || b[i] == nil {
			continue
		}
		x, okX := toFloat(a[i])
		y, okY := toFloat(b[i])
		if !okX || !okY {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return xs, ys
}

func histogram(values []float64, minVal, maxVal float64) []entity.HistogramBucket {
	width := (maxVal - minVal) / histogramBuckets
	buckets := make([]entity.HistogramBucket, histogramBuckets)
	for i := range buckets {
		buckets[i].LowerBound = minVal + float64(i)*width
		buckets[i].UpperBound = buckets[i].LowerBound + width
	}
	buckets[histogramBuckets-1].UpperBound = maxVal

	for _, v := range values {
		idx := int((v - minVal) / width)
		if idx >= histogramBuckets {
			idx = histogramBuckets - 1
		}
		buckets[idx].Count++
	}
	return buckets
}

// pearson computes the Pearson correlation coefficient of two equally sized
// samples.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var sumX, sumY, sumXY, sumXSq, sumYSq float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXSq += x[i] * x[i]
		sumYSq += y[i] * y[i]
	}
	denom := math.Sqrt((n*sumXSq - sumX*sumX) * (n*sumYSq - sumY*sumY))
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
