package entity

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/steffengr/feature-store-api/dataframe"
)

// Wire discriminator for cached feature group payloads.
const featureGroupDTOType = "cachedFeaturegroupDTO"

// Time travel formats and write modes understood by the compute engine.
const (
	TimeTravelFormatHudi = "HUDI"

	OperationInsert = "insert"
	OperationUpsert = "upsert"

	StorageOnline  = "online"
	StorageOffline = "offline"
)

// FeatureGroupDTO is the wire representation of a feature group exchanged
// with the metadata service.
type FeatureGroupDTO struct {
	Type             string                   `json:"type"`
	ID               int                      `json:"id,omitempty"`
	Name             string                   `json:"name"`
	Version          int                      `json:"version,omitempty"`
	Description      string                   `json:"description"`
	OnlineEnabled    bool                     `json:"onlineEnabled"`
	TimeTravelFormat string                   `json:"timeTravelFormat,omitempty"`
	Features         []Feature                `json:"features"`
	FeatureStoreID   int                      `json:"featurestoreId"`
	FeatureStoreName string                   `json:"featurestoreName,omitempty"`
	Created          string                   `json:"created,omitempty"`
	Creator          string                   `json:"creator,omitempty"`
	Location         string                   `json:"location,omitempty"`
	Jobs             []map[string]interface{} `json:"jobs,omitempty"`
	HudiEnabled      bool                     `json:"hudiEnabled,omitempty"`
	DescStatsEnabled bool                     `json:"descStatsEnabled"`
	FeatHistEnabled  bool                     `json:"featHistEnabled"`
	FeatCorrEnabled  bool                     `json:"featCorrEnabled"`
	StatisticColumns []string                 `json:"statisticColumns"`
}

// FeatureGroup is the client-side handle of a feature group: its schema and
// configuration, plus delegation to the metadata, compute and statistics
// engines for everything substantive. A handle with ID zero is unsaved;
// identity is assigned by the metadata engine on first Save.
//
// A FeatureGroup is not safe for concurrent use.
type FeatureGroup struct {
	ID               int
	Name             string
	Version          int
	Description      string
	FeatureStoreID   int
	FeatureStoreName string
	Created          string
	Creator          string
	Location         string
	Features         []Feature
	PrimaryKey       []string
	PartitionKey     []string
	OnlineEnabled    bool
	HudiEnabled      bool
	Jobs             []map[string]interface{}

	timeTravelFormat string
	statisticsConfig StatisticsConfig

	meta    MetadataEngine
	compute ComputeEngine
	stats   StatisticsEngine
	logger  *zap.Logger
}

// FeatureGroupOptions are the optional arguments of NewFeatureGroup.
type FeatureGroupOptions struct {
	Description      string
	Features         []Feature
	PrimaryKey       []string
	PartitionKey     []string
	OnlineEnabled    bool
	TimeTravelFormat string
	// StatisticsConfig accepts a StatisticsConfig, a map, a bool or nil.
	StatisticsConfig interface{}
}

// NewFeatureGroup constructs an unsaved handle. Primary and partition keys
// are taken verbatim from the options; identity is assigned on first Save.
func NewFeatureGroup(name string, version int, featureStoreID int, opts FeatureGroupOptions) (*FeatureGroup, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	statsConfig, err := NormalizeStatisticsConfig(opts.StatisticsConfig)
	if err != nil {
		return nil, err
	}
	return &FeatureGroup{
		Name:             name,
		Version:          version,
		Description:      opts.Description,
		FeatureStoreID:   featureStoreID,
		Features:         opts.Features,
		PrimaryKey:       opts.PrimaryKey,
		PartitionKey:     opts.PartitionKey,
		OnlineEnabled:    opts.OnlineEnabled,
		timeTravelFormat: strings.ToUpper(opts.TimeTravelFormat),
		statisticsConfig: statsConfig,
		logger:           zap.NewNop(),
	}, nil
}

// FromResponseJSON constructs a handle from a metadata service payload. The
// primary and partition keys are recomputed from the feature flags,
// overriding whatever the payload carries.
func FromResponseJSON(payload []byte) (*FeatureGroup, error) {
	var dto FeatureGroupDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return nil, &DeserializationError{Reason: "malformed payload", Cause: err}
	}
	return FromDTO(&dto)
}

// FromDTO constructs a handle from an already decoded wire representation,
// applying the same backend-construction rules as FromResponseJSON.
func FromDTO(dto *FeatureGroupDTO) (*FeatureGroup, error) {
	if dto.Name == "" {
		return nil, &DeserializationError{Reason: "missing required field name"}
	}
	fg := &FeatureGroup{
		ID:               dto.ID,
		Name:             dto.Name,
		Version:          dto.Version,
		Description:      dto.Description,
		FeatureStoreID:   dto.FeatureStoreID,
		FeatureStoreName: dto.FeatureStoreName,
		Created:          dto.Created,
		Creator:          dto.Creator,
		Location:         dto.Location,
		Features:         dto.Features,
		OnlineEnabled:    dto.OnlineEnabled,
		HudiEnabled:      dto.HudiEnabled,
		Jobs:             dto.Jobs,
		timeTravelFormat: strings.ToUpper(dto.TimeTravelFormat),
		logger:           zap.NewNop(),
	}
	if fg.ID != 0 {
		// Initialized by the backend: keys derive from the feature flags and
		// the statistics config from the flattened DTO fields.
		fg.statisticsConfig = StatisticsConfig{
			Enabled:      dto.DescStatsEnabled,
			Correlations: dto.FeatCorrEnabled,
			Histograms:   dto.FeatHistEnabled,
			Columns:      dto.StatisticColumns,
		}
		for _, feat := range fg.Features {
			if feat.Primary {
				fg.PrimaryKey = append(fg.PrimaryKey, feat.Name)
			}
			if feat.Partition {
				fg.PartitionKey = append(fg.PartitionKey, feat.Name)
			}
		}
	}
	return fg, nil
}

// UpdateFromResponseJSON re-initializes the handle in place from a metadata
// service payload, keeping the engine bindings. Used to refresh local state
// after a round-trip to the backend.
func (fg *FeatureGroup) UpdateFromResponseJSON(payload []byte) error {
	updated, err := FromResponseJSON(payload)
	if err != nil {
		return err
	}
	updated.meta = fg.meta
	updated.compute = fg.compute
	updated.stats = fg.stats
	updated.logger = fg.logger
	*fg = *updated
	return nil
}

// Bind attaches the engines the handle delegates to. It returns the handle
// for chaining.
func (fg *FeatureGroup) Bind(meta MetadataEngine, compute ComputeEngine, stats StatisticsEngine, logger *zap.Logger) *FeatureGroup {
	fg.meta = meta
	fg.compute = compute
	fg.stats = stats
	if logger != nil {
		fg.logger = logger
	} else if fg.logger == nil {
		fg.logger = zap.NewNop()
	}
	return fg
}

// ToDTO produces the canonical wire representation for create and update
// requests. It is side-effect free.
func (fg *FeatureGroup) ToDTO() FeatureGroupDTO {
	return FeatureGroupDTO{
		Type:             featureGroupDTOType,
		ID:               fg.ID,
		Name:             fg.Name,
		Version:          fg.Version,
		Description:      fg.Description,
		OnlineEnabled:    fg.OnlineEnabled,
		TimeTravelFormat: fg.timeTravelFormat,
		Features:         fg.Features,
		FeatureStoreID:   fg.FeatureStoreID,
		DescStatsEnabled: fg.statisticsConfig.Enabled,
		FeatHistEnabled:  fg.statisticsConfig.Histograms,
		FeatCorrEnabled:  fg.statisticsConfig.Correlations,
		StatisticColumns: fg.statisticsConfig.Columns,
	}
}

// JSON marshals the canonical wire representation.
func (fg *FeatureGroup) JSON() ([]byte, error) {
	return json.Marshal(fg.ToDTO())
}

// TimeTravelFormat returns the storage format identifier, always upper-case.
func (fg *FeatureGroup) TimeTravelFormat() string {
	return fg.timeTravelFormat
}

// SetTimeTravelFormat stores the format identifier upper-cased.
func (fg *FeatureGroup) SetTimeTravelFormat(format string) {
	fg.timeTravelFormat = strings.ToUpper(format)
}

// StatisticsConfig returns the statistics configuration.
func (fg *FeatureGroup) StatisticsConfig() StatisticsConfig {
	return fg.statisticsConfig
}

// SetStatisticsConfig accepts a StatisticsConfig, a map, a bool or nil and
// stores the normalized configuration.
func (fg *FeatureGroup) SetStatisticsConfig(value interface{}) error {
	cfg, err := NormalizeStatisticsConfig(value)
	if err != nil {
		return err
	}
	fg.statisticsConfig = cfg
	return nil
}

// ReadOptions control a feature group read.
type ReadOptions struct {
	// WallclockTime scopes the read to the table state as of this point in
	// time, in YYYYMMDD or YYYYMMDDhhmmss form. Empty reads the latest state.
	WallclockTime string
	// Online reads from the low-latency serving store instead of the
	// offline store.
	Online bool
	// DataframeType selects the output representation; empty means
	// dataframe.TypeDefault.
	DataframeType string
	// Extra holds engine-specific read options.
	Extra map[string]interface{}
}

// Read returns the materialized contents of the feature group in the shape
// selected by DataframeType.
func (fg *FeatureGroup) Read(ctx context.Context, opts ReadOptions) (interface{}, error) {
	if err := fg.requireCompute(); err != nil {
		return nil, err
	}
	switch opts.DataframeType {
	case "", dataframe.TypeDefault, dataframe.TypeRecords, dataframe.TypeColumns, dataframe.TypeRows:
	default:
		return nil, &ValidationError{Field: "dataframe_type", Reason: "must be one of default, records, columns, rows"}
	}
	query := fg.compute.SelectAll(fg)
	if opts.WallclockTime != "" {
		query = query.AsOf(opts.WallclockTime)
	}
	df, err := query.Read(ctx, opts.Online, opts.Extra)
	if err != nil {
		return nil, err
	}
	return dataframe.Convert(df, opts.DataframeType)
}

// ReadChanges returns the rows added, updated or deleted between two commit
// timestamps. Whether the group's time travel format supports incremental
// change capture is decided by the compute engine.
func (fg *FeatureGroup) ReadChanges(ctx context.Context, startWallclockTime, endWallclockTime string, options map[string]interface{}) (*dataframe.DataFrame, error) {
	if err := fg.requireCompute(); err != nil {
		return nil, err
	}
	return fg.compute.
		SelectAll(fg).
		PullChanges(startWallclockTime, endWallclockTime).
		Read(ctx, false, options)
}

// Show returns the first n rows of the feature group.
func (fg *FeatureGroup) Show(ctx context.Context, n int, online bool) (*dataframe.DataFrame, error) {
	if err := fg.requireCompute(); err != nil {
		return nil, err
	}
	return fg.compute.SelectAll(fg).Show(ctx, n, online)
}

// CommitDetails returns the commit timeline of the feature group, newest
// first, truncated to the most recent limit entries when limit is positive.
func (fg *FeatureGroup) CommitDetails(ctx context.Context, limit int) ([]Commit, error) {
	if err := fg.requireMeta(); err != nil {
		return nil, err
	}
	return fg.meta.CommitDetails(ctx, fg, limit)
}

// WriteOptions are engine-specific write options passed through unchanged.
type WriteOptions map[string]interface{}

// Save persists the feature group for the first time: it registers the
// metadata with the backend (assigning ID and, if unset, version), then
// materializes the data, then computes statistics if enabled. When no
// version was supplied an advisory warning reports the assigned one.
func (fg *FeatureGroup) Save(ctx context.Context, features interface{}, options WriteOptions) error {
	if err := fg.requireMeta(); err != nil {
		return err
	}
	if err := fg.requireCompute(); err != nil {
		return err
	}
	features, err := fg.resolveRowList(features)
	if err != nil {
		return err
	}
	df, err := fg.compute.ConvertToDefaultDataframe(features)
	if err != nil {
		return err
	}

	userVersion := fg.Version
	result, err := fg.meta.Save(ctx, fg)
	if err != nil {
		return err
	}
	fg.ID = result.ID
	fg.Version = result.Version

	if _, err := fg.compute.Write(ctx, fg, df, WriteRequest{
		Operation: OperationInsert,
		Options:   options,
	}); err != nil {
		return err
	}

	if fg.statisticsConfig.Enabled {
		if _, err := fg.requireStats(); err != nil {
			return err
		}
		if _, err := fg.stats.ComputeStatistics(ctx, fg, df); err != nil {
			return err
		}
	}

	if userVersion == 0 {
		fg.logger.Warn("no version provided for creating feature group, incremented version",
			zap.String("name", fg.Name),
			zap.Int("version", fg.Version),
		)
	}
	return nil
}

// InsertOptions control an incremental write.
type InsertOptions struct {
	// Overwrite truncates existing data before writing; metadata is
	// unaffected.
	Overwrite bool
	// Operation is OperationInsert or OperationUpsert; empty defaults to
	// upsert. Only meaningful for change-data-capture storage formats.
	Operation string
	// Storage restricts the write target to StorageOnline or StorageOffline;
	// empty writes to both as configured.
	Storage string
	// Write holds engine-specific write options.
	Write WriteOptions
}

// Insert writes data incrementally into an already persisted feature group.
// Statistics are recomputed afterwards through ComputeStatistics, which
// warns instead of computing when statistics are disabled.
func (fg *FeatureGroup) Insert(ctx context.Context, features interface{}, opts InsertOptions) error {
	if opts.Operation == "" {
		opts.Operation = OperationUpsert
	}
	if opts.Operation != OperationInsert && opts.Operation != OperationUpsert {
		return &ValidationError{Field: "operation", Reason: "must be either insert or upsert"}
	}
	storage := strings.ToLower(opts.Storage)
	if storage != "" && storage != StorageOnline && storage != StorageOffline {
		return &ValidationError{Field: "storage", Reason: "must be online, offline or empty"}
	}
	if err := fg.requireCompute(); err != nil {
		return err
	}

	features, err := fg.resolveRowList(features)
	if err != nil {
		return err
	}
	df, err := fg.compute.ConvertToDefaultDataframe(features)
	if err != nil {
		return err
	}
	if _, err := fg.compute.Write(ctx, fg, df, WriteRequest{
		Overwrite: opts.Overwrite,
		Operation: opts.Operation,
		Storage:   storage,
		Options:   opts.Write,
	}); err != nil {
		return err
	}

	_, err = fg.ComputeStatistics(ctx)
	return err
}

// CommitDeleteRecord deletes the rows matching the keys present in deleteDf
// and records the deletion as a new commit. Requires a time travel format
// with row-level deletion support.
func (fg *FeatureGroup) CommitDeleteRecord(ctx context.Context, deleteDf interface{}, options WriteOptions) error {
	if err := fg.requireCompute(); err != nil {
		return err
	}
	deleteDf, err := fg.resolveRowList(deleteDf)
	if err != nil {
		return err
	}
	df, err := fg.compute.ConvertToDefaultDataframe(deleteDf)
	if err != nil {
		return err
	}
	_, err = fg.compute.DeleteRecords(ctx, fg, df, options)
	return err
}

// AppendFeatures appends one or more features to the schema. It accepts a
// Feature, a *Feature or a []Feature; anything else is a ValidationError
// that leaves the schema unchanged. Appending is the only supported schema
// evolution; removing features is a breaking change and has no counterpart.
func (fg *FeatureGroup) AppendFeatures(ctx context.Context, features interface{}) error {
	var newFeatures []Feature
	switch v := features.(type) {
	case Feature:
		newFeatures = []Feature{v}
	case *Feature:
		if v == nil {
			return &ValidationError{Field: "features", Reason: "must not be nil"}
		}
		newFeatures = []Feature{*v}
	case []Feature:
		if len(v) == 0 {
			return &ValidationError{Field: "features", Reason: "must not be empty"}
		}
		newFeatures = v
	default:
		return &ValidationError{Field: "features", Reason: "must be a Feature or a list thereof"}
	}
	if err := fg.requireMeta(); err != nil {
		return err
	}
	if err := fg.meta.AppendFeatures(ctx, fg, newFeatures); err != nil {
		return err
	}
	fg.Features = append(fg.Features, newFeatures...)
	return nil
}

// UpdateDescription updates the description in the metadata service and, on
// success, on the handle.
func (fg *FeatureGroup) UpdateDescription(ctx context.Context, description string) error {
	if err := fg.requireMeta(); err != nil {
		return err
	}
	if err := fg.meta.UpdateDescription(ctx, fg, description); err != nil {
		return err
	}
	fg.Description = description
	return nil
}

// UpdateStatisticsConfig persists the handle's statistics configuration.
func (fg *FeatureGroup) UpdateStatisticsConfig(ctx context.Context) error {
	if err := fg.requireMeta(); err != nil {
		return err
	}
	return fg.meta.UpdateStatisticsConfig(ctx, fg)
}

// ComputeStatistics recomputes statistics over the offline contents of the
// feature group. When statistics are disabled this is a no-op that logs an
// advisory warning and returns no result.
func (fg *FeatureGroup) ComputeStatistics(ctx context.Context) (*Statistics, error) {
	if !fg.statisticsConfig.Enabled {
		fg.logger.Warn("statistics not enabled for feature group, nothing computed",
			zap.String("name", fg.Name),
			zap.Int("version", fg.Version),
		)
		return nil, nil
	}
	if err := fg.requireCompute(); err != nil {
		return nil, err
	}
	if _, err := fg.requireStats(); err != nil {
		return nil, err
	}
	df, err := fg.compute.SelectAll(fg).Read(ctx, false, nil)
	if err != nil {
		return nil, err
	}
	return fg.stats.ComputeStatistics(ctx, fg, df)
}

// Statistics returns the most recently computed statistics snapshot.
func (fg *FeatureGroup) Statistics(ctx context.Context) (*Statistics, error) {
	if _, err := fg.requireStats(); err != nil {
		return nil, err
	}
	return fg.stats.GetLast(ctx, fg)
}

// GetStatistics returns the statistics as of a specific commit time in
// YYYYMMDDhhmmss form, or the latest snapshot when commitTime is empty.
func (fg *FeatureGroup) GetStatistics(ctx context.Context, commitTime string) (*Statistics, error) {
	if commitTime == "" {
		return fg.Statistics(ctx)
	}
	if _, err := fg.requireStats(); err != nil {
		return nil, err
	}
	return fg.stats.Get(ctx, fg, commitTime)
}

// resolveRowList turns positional row-list input into a dataframe using the
// schema's column order. Every other input shape passes through untouched
// for the compute engine to normalize.
func (fg *FeatureGroup) resolveRowList(features interface{}) (interface{}, error) {
	rows, ok := features.([][]interface{})
	if !ok {
		return features, nil
	}
	if len(fg.Features) == 0 {
		return nil, &ValidationError{Field: "features", Reason: "row-list input requires a schema on the handle"}
	}
	names := make([]string, len(fg.Features))
	for i, feat := range fg.Features {
		names[i] = feat.Name
	}
	df, err := dataframe.FromRows(names, rows)
	if err != nil {
		return nil, &ValidationError{Field: "features", Reason: err.Error()}
	}
	return df, nil
}

func (fg *FeatureGroup) requireMeta() error {
	if fg.meta == nil {
		return &ValidationError{Field: "handle", Reason: "not bound to a metadata engine"}
	}
	return nil
}

func (fg *FeatureGroup) requireCompute() error {
	if fg.compute == nil {
		return &ValidationError{Field: "handle", Reason: "not bound to a compute engine"}
	}
	return nil
}

func (fg *FeatureGroup) requireStats() (StatisticsEngine, error) {
	if fg.stats == nil {
		return nil, &ValidationError{Field: "handle", Reason: "not bound to a statistics engine"}
	}
	return fg.stats, nil
}
