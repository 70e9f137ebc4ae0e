package featurestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steffengr/feature-store-api/entity"
	"github.com/steffengr/feature-store-api/internal/appcontext"
	"github.com/steffengr/feature-store-api/metadata"
	"github.com/steffengr/feature-store-api/statistics"
)

func newTestConnection(t *testing.T, handler http.HandlerFunc) *Connection {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := metadata.NewClient(metadata.Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	meta := metadata.NewEngine(client, nil)
	return &Connection{
		appCtx: &appcontext.Context{Logger: zap.NewNop()},
		meta:   meta,
		stats:  statistics.NewEngine(meta, nil),
	}
}

func TestGetOrCreateFeatureGroupCreatesOnAbsence(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		// Unknown groups come back as an empty list, status 200.
		w.Write([]byte(`[]`))
	})
	fs := &FeatureStore{conn: conn, ID: 67, Name: "demo"}

	fg, err := fs.GetOrCreateFeatureGroup(context.Background(), "sales", 1, entity.FeatureGroupOptions{
		Features: []entity.Feature{{Name: "id", Primary: true}},
	})
	require.NoError(t, err)
	assert.Zero(t, fg.ID)
	assert.Equal(t, "sales", fg.Name)
	assert.Equal(t, "demo", fg.FeatureStoreName)
}

func TestGetOrCreateFeatureGroupPropagatesFailure(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMsg": "featurestore access denied"}`))
	})
	fs := &FeatureStore{conn: conn, ID: 67, Name: "demo"}

	// A failed fetch must surface, never be answered with a fresh handle.
	_, err := fs.GetOrCreateFeatureGroup(context.Background(), "sales", 1, entity.FeatureGroupOptions{})
	var remoteErr *entity.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadRequest, remoteErr.StatusCode)
}

func TestGetFeatureGroupBindsHandle(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"type": "cachedFeaturegroupDTO", "id": 9, "name": "sales", "version": 1, "featurestoreId": 67, "features": [{"name": "id", "primary": true}]}]`))
	})
	fs := &FeatureStore{conn: conn, ID: 67, Name: "demo"}

	fg, err := fs.GetFeatureGroup(context.Background(), "sales", 1)
	require.NoError(t, err)
	assert.Equal(t, 9, fg.ID)
	assert.Equal(t, "demo", fg.FeatureStoreName)
	assert.Equal(t, []string{"id"}, fg.PrimaryKey)
}
