package entity

import (
	"context"

	"github.com/steffengr/feature-store-api/dataframe"
)

// SaveResult carries the identity the backend assigned while registering a
// feature group. The handle merges it into its own fields; the engine never
// mutates the handle behind the call.
type SaveResult struct {
	ID      int
	Version int
}

// WriteRequest describes a single materialization of feature data.
type WriteRequest struct {
	Overwrite bool
	Operation string
	Storage   string
	Options   map[string]interface{}
}

// MetadataEngine persists and evolves the feature group's representation in
// the metadata service.
type MetadataEngine interface {
	Save(ctx context.Context, fg *FeatureGroup) (SaveResult, error)
	CommitDetails(ctx context.Context, fg *FeatureGroup, limit int) ([]Commit, error)
	UpdateStatisticsConfig(ctx context.Context, fg *FeatureGroup) error
	UpdateDescription(ctx context.Context, fg *FeatureGroup, description string) error
	AppendFeatures(ctx context.Context, fg *FeatureGroup, features []Feature) error
}

// ComputeEngine executes reads and writes against the tabular storage,
// including time-travel reads where the storage format supports them.
type ComputeEngine interface {
	ConvertToDefaultDataframe(features interface{}) (*dataframe.DataFrame, error)
	SelectAll(fg *FeatureGroup) Query
	Write(ctx context.Context, fg *FeatureGroup, df *dataframe.DataFrame, req WriteRequest) (*Commit, error)
	DeleteRecords(ctx context.Context, fg *FeatureGroup, df *dataframe.DataFrame, options map[string]interface{}) (*Commit, error)
}

// Query is a lazily built read over a feature group. AsOf and PullChanges
// return derived queries and leave the receiver usable.
type Query interface {
	AsOf(wallclockTime string) Query
	PullChanges(startWallclockTime, endWallclockTime string) Query
	Read(ctx context.Context, online bool, options map[string]interface{}) (*dataframe.DataFrame, error)
	Show(ctx context.Context, n int, online bool) (*dataframe.DataFrame, error)
}

// StatisticsEngine computes and retrieves descriptive statistics.
type StatisticsEngine interface {
	ComputeStatistics(ctx context.Context, fg *FeatureGroup, df *dataframe.DataFrame) (*Statistics, error)
	GetLast(ctx context.Context, fg *FeatureGroup) (*Statistics, error)
	Get(ctx context.Context, fg *FeatureGroup, commitTime string) (*Statistics, error)
}
