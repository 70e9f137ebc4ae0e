package compute

import (
	"context"

	"github.com/steffengr/feature-store-api/dataframe"
	"github.com/steffengr/feature-store-api/entity"
)

// Query is a lazily built read over a feature group. The zero value reads
// the latest offline state; AsOf and PullChanges derive scoped queries.
type Query struct {
	engine *Engine
	fg     *entity.FeatureGroup

	asOf      string
	pullStart string
	pullEnd   string
}

// AsOf scopes the query to the table state at a wallclock time.
func (q *Query) AsOf(wallclockTime string) entity.Query {
	derived := *q
	derived.asOf = wallclockTime
	return &derived
}

// PullChanges scopes the query to the rows committed between two wallclock
// times.
func (q *Query) PullChanges(startWallclockTime, endWallclockTime string) entity.Query {
	derived := *q
	derived.pullStart = startWallclockTime
	derived.pullEnd = endWallclockTime
	return &derived
}

// Read executes the query. The online store serves the latest state only;
// combining it with a time travel scope is rejected.
func (q *Query) Read(ctx context.Context, online bool, options map[string]interface{}) (*dataframe.DataFrame, error) {
	if online {
		if q.asOf != "" || q.pullStart != "" || q.pullEnd != "" {
			return nil, &entity.ValidationError{
				Field:  "online",
				Reason: "time travel is not supported on the online store",
			}
		}
		return q.engine.readOnline(ctx, q.fg)
	}
	if q.pullStart != "" || q.pullEnd != "" {
		return q.engine.readChanges(ctx, q.fg, q.pullStart, q.pullEnd)
	}
	return q.engine.readOffline(ctx, q.fg, q.asOf)
}

// Show executes the query and truncates the result to the first n rows.
func (q *Query) Show(ctx context.Context, n int, online bool) (*dataframe.DataFrame, error) {
	df, err := q.Read(ctx, online, nil)
	if err != nil {
		return nil, err
	}
	return df.Head(n), nil
}
