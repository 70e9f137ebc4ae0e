package entity

// HistogramBucket is one equi-width bucket of a feature value histogram.
type HistogramBucket struct {
	LowerBound float64 `json:"lowerBound"`
	UpperBound float64 `json:"upperBound"`
	Count      int64   `json:"count"`
}

// FeatureStatistics holds the descriptive statistics of a single feature.
// Min, Max, Mean and StdDev are nil for non-numeric features.
type FeatureStatistics struct {
	Name      string            `json:"name"`
	Count     int64             `json:"count"`
	NullCount int64             `json:"nullCount"`
	Distinct  int64             `json:"distinct"`
	Min       *float64          `json:"min,omitempty"`
	Max       *float64          `json:"max,omitempty"`
	Mean      *float64          `json:"mean,omitempty"`
	StdDev    *float64          `json:"stdDev,omitempty"`
	Histogram []HistogramBucket `json:"histogram,omitempty"`
}

// Correlation is the Pearson correlation between a pair of numeric features.
type Correlation struct {
	FeatureA string  `json:"featureA"`
	FeatureB string  `json:"featureB"`
	Value    float64 `json:"value"`
}

// Statistics is one computed statistics snapshot of a feature group,
// identified by the commit time it was computed at.
type Statistics struct {
	CommitTime        string              `json:"commitTime"`
	FeatureStatistics []FeatureStatistics `json:"featureStatistics"`
	Correlations      []Correlation       `json:"correlations,omitempty"`
}
