package appcontext

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/steffengr/feature-store-api/metadata"
)

// Context bundles the shared runtime collaborators of a connection: the
// logger, the offline store database, the optional online store client and
// the metadata service client.
type Context struct {
	Logger *zap.Logger
	DB     *gorm.DB

	// Redis is nil when no online store is configured.
	Redis *redis.Client

	Metadata *metadata.Client
}
