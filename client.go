// Package featurestore is a client SDK for a feature store: it manages
// feature group metadata through the REST metadata service and delegates
// data reads, writes and statistics to the compute and statistics engines.
package featurestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/steffengr/feature-store-api/compute"
	"github.com/steffengr/feature-store-api/entity"
	"github.com/steffengr/feature-store-api/internal/appcontext"
	"github.com/steffengr/feature-store-api/internal/config"
	"github.com/steffengr/feature-store-api/metadata"
	"github.com/steffengr/feature-store-api/statistics"
)

// Connection is an established connection to a feature store deployment.
type Connection struct {
	appCtx *appcontext.Context

	meta  *metadata.Engine
	comp  *compute.Engine
	stats *statistics.Engine
}

// Connect reads the environment configuration (FS_API_URL, FS_API_KEY,
// DATABASE_URL, REDIS_ADDR) and wires the engines together.
func Connect() (*Connection, error) {
	appCtx, err := config.InitContext()
	if err != nil {
		return nil, err
	}
	return newConnection(appCtx), nil
}

func newConnection(appCtx *appcontext.Context) *Connection {
	meta := metadata.NewEngine(appCtx.Metadata, appCtx.Logger)

	var online compute.OnlineStore
	if appCtx.Redis != nil {
		online = compute.NewRedisOnlineStore(appCtx.Redis)
	}

	return &Connection{
		appCtx: appCtx,
		meta:   meta,
		comp:   compute.NewEngine(appCtx.DB, online, appCtx.Logger),
		stats:  statistics.NewEngine(meta, appCtx.Logger),
	}
}

// Close releases the connection's resources.
func (c *Connection) Close() error {
	var errs []error
	if c.appCtx.DB != nil {
		if sqlDB, err := c.appCtx.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if c.appCtx.Redis != nil {
		errs = append(errs, c.appCtx.Redis.Close())
	}
	return errors.Join(errs...)
}

// Logger exposes the connection's logger.
func (c *Connection) Logger() *zap.Logger {
	return c.appCtx.Logger
}

// GetFeatureStore fetches a feature store by name.
func (c *Connection) GetFeatureStore(ctx context.Context, name string) (*FeatureStore, error) {
	dto, err := c.meta.GetFeatureStore(ctx, name)
	if err != nil {
		return nil, err
	}
	return &FeatureStore{conn: c, ID: dto.ID, Name: dto.Name}, nil
}

// FeatureStore scopes feature group access to one feature store.
type FeatureStore struct {
	conn *Connection

	ID   int
	Name string
}

// GetFeatureGroup fetches a feature group by name and version and returns a
// handle bound to the connection's engines.
func (fs *FeatureStore) GetFeatureGroup(ctx context.Context, name string, version int) (*entity.FeatureGroup, error) {
	dto, err := fs.conn.meta.GetFeatureGroup(ctx, fs.ID, name, version)
	if err != nil {
		return nil, err
	}
	fg, err := entity.FromDTO(dto)
	if err != nil {
		return nil, err
	}
	fg.FeatureStoreName = fs.Name
	return fs.bind(fg), nil
}

// CreateFeatureGroup constructs an unsaved handle bound to the connection's
// engines. Nothing is persisted until Save is called on it.
func (fs *FeatureStore) CreateFeatureGroup(name string, version int, opts entity.FeatureGroupOptions) (*entity.FeatureGroup, error) {
	fg, err := entity.NewFeatureGroup(name, version, fs.ID, opts)
	if err != nil {
		return nil, err
	}
	fg.FeatureStoreName = fs.Name
	return fs.bind(fg), nil
}

// GetOrCreateFeatureGroup fetches a feature group, constructing an unsaved
// handle when the backend does not know it yet. Transport and backend
// failures are propagated, never answered with a fresh handle.
func (fs *FeatureStore) GetOrCreateFeatureGroup(ctx context.Context, name string, version int, opts entity.FeatureGroupOptions) (*entity.FeatureGroup, error) {
	fg, err := fs.GetFeatureGroup(ctx, name, version)
	if err == nil {
		return fg, nil
	}
	var remoteErr *entity.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
		return fs.CreateFeatureGroup(name, version, opts)
	}
	return nil, fmt.Errorf("failed to fetch feature group %s: %w", name, err)
}

func (fs *FeatureStore) bind(fg *entity.FeatureGroup) *entity.FeatureGroup {
	return fg.Bind(fs.conn.meta, fs.conn.comp, fs.conn.stats, fs.conn.appCtx.Logger)
}
