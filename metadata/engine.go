package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/steffengr/feature-store-api/entity"
)

// Engine implements entity.MetadataEngine against the REST metadata service.
type Engine struct {
	client *Client
	logger *zap.Logger
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

// FeatureStoreDTO is the wire representation of a feature store.
type FeatureStoreDTO struct {
	ID          int    `json:"featurestoreId"`
	Name        string `json:"featurestoreName"`
	ProjectName string `json:"projectName,omitempty"`
	ProjectID   int    `json:"projectId,omitempty"`
}

func NewEngine(client *Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, logger: logger}
}

func featureGroupsPath(featureStoreID int) string {
	return fmt.Sprintf("/featurestores/%d/featuregroups", featureStoreID)
}

func featureGroupPath(fg *entity.FeatureGroup) string {
	return fmt.Sprintf("%s/%d", featureGroupsPath(fg.FeatureStoreID), fg.ID)
}

// GetFeatureStore fetches a feature store by name.
func (e *Engine) GetFeatureStore(ctx context.Context, name string) (*FeatureStoreDTO, error) {
	var dto FeatureStoreDTO
	if err := e.client.Get(ctx, "get feature store", "/featurestores/"+url.PathEscape(name), nil, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// GetFeatureGroup fetches a feature group by name and version.
func (e *Engine) GetFeatureGroup(ctx context.Context, featureStoreID int, name string, version int) (*entity.FeatureGroupDTO, error) {
	query := url.Values{}
	query.Set("version", strconv.Itoa(version))
	var dtos []entity.FeatureGroupDTO
	path := featureGroupsPath(featureStoreID) + "/" + url.PathEscape(name)
	if err := e.client.Get(ctx, "get feature group", path, query, &dtos); err != nil {
		return nil, err
	}
	if len(dtos) == 0 {
		// The backend answers an unknown group with an empty list, not a
		// 404; map it so callers can tell absence from transport failure.
		return nil, &entity.RemoteError{
			Op:         "get feature group",
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("feature group %s version %d not found", name, version),
		}
	}
	return &dtos[0], nil
}

// Save registers the feature group with the backend and returns the identity
// it assigned.
func (e *Engine) Save(ctx context.Context, fg *entity.FeatureGroup) (entity.SaveResult, error) {
	var created entity.FeatureGroupDTO
	if err := e.client.Post(ctx, "save feature group", featureGroupsPath(fg.FeatureStoreID), fg.ToDTO(), &created); err != nil {
		return entity.SaveResult{}, err
	}
	e.logger.Info("registered feature group",
		zap.String("name", created.Name),
		zap.Int("id", created.ID),
		zap.Int("version", created.Version),
	)
	return entity.SaveResult{ID: created.ID, Version: created.Version}, nil
}

// CommitDetails returns the commit timeline, newest first.
func (e *Engine) CommitDetails(ctx context.Context, fg *entity.FeatureGroup, limit int) ([]entity.Commit, error) {
	query := url.Values{}
	query.Set("sort_by", "committed_on:desc")
	query.Set("offset", "0")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp listResponse[entity.Commit]
	if err := e.client.Get(ctx, "get commit details", featureGroupPath(fg)+"/commits", query, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// UpdateStatisticsConfig persists the handle's statistics configuration.
func (e *Engine) UpdateStatisticsConfig(ctx context.Context, fg *entity.FeatureGroup) error {
	query := url.Values{}
	query.Set("updateStatsConfig", "true")
	query.Set("enableHistograms", strconv.FormatBool(fg.StatisticsConfig().Histograms))
	query.Set("enableCorrelations", strconv.FormatBool(fg.StatisticsConfig().Correlations))
	return e.client.Put(ctx, "update statistics config", featureGroupPath(fg), query, fg.ToDTO(), nil)
}

// UpdateDescription persists a new description.
func (e *Engine) UpdateDescription(ctx context.Context, fg *entity.FeatureGroup, description string) error {
	dto := fg.ToDTO()
	dto.Description = description
	query := url.Values{}
	query.Set("updateMetadata", "true")
	return e.client.Put(ctx, "update description", featureGroupPath(fg), query, dto, nil)
}

// AppendFeatures submits the schema with the new features appended. The
// backend performs the backward-compatible schema evolution.
func (e *Engine) AppendFeatures(ctx context.Context, fg *entity.FeatureGroup, features []entity.Feature) error {
	dto := fg.ToDTO()
	dto.Features = append(append([]entity.Feature{}, dto.Features...), features...)
	query := url.Values{}
	query.Set("updateMetadata", "true")
	return e.client.Put(ctx, "append features", featureGroupPath(fg), query, dto, nil)
}

// SaveStatistics persists a computed statistics snapshot.
func (e *Engine) SaveStatistics(ctx context.Context, fg *entity.FeatureGroup, stats *entity.Statistics) error {
	return e.client.Post(ctx, "save statistics", featureGroupPath(fg)+"/statistics", stats, nil)
}

// LastStatistics returns the most recent statistics snapshot, or nil when no
// statistics were computed yet.
func (e *Engine) LastStatistics(ctx context.Context, fg *entity.FeatureGroup) (*entity.Statistics, error) {
	query := url.Values{}
	query.Set("sort_by", "commit_time:desc")
	query.Set("offset", "0")
	query.Set("limit", "1")
	var resp listResponse[entity.Statistics]
	if err := e.client.Get(ctx, "get last statistics", featureGroupPath(fg)+"/statistics", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return &resp.Items[0], nil
}

// GetStatistics returns the statistics snapshot at a specific commit time.
func (e *Engine) GetStatistics(ctx context.Context, fg *entity.FeatureGroup, commitTime string) (*entity.Statistics, error) {
	query := url.Values{}
	query.Set("filter_by", "commit_time_eq:"+commitTime)
	var resp listResponse[entity.Statistics]
	if err := e.client.Get(ctx, "get statistics", featureGroupPath(fg)+"/statistics", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, &entity.RemoteError{
			Op:         "get statistics",
			StatusCode: http.StatusNotFound,
			Message:    "no statistics found for commit time " + commitTime,
		}
	}
	return &resp.Items[0], nil
}
