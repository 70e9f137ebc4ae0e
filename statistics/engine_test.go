package statistics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steffengr/feature-store-api/dataframe"
	"github.com/steffengr/feature-store-api/entity"
)

type fakeStore struct {
	saved  []*entity.Statistics
	last   *entity.Statistics
	byTime map[string]*entity.Statistics
	err    error
}

func (s *fakeStore) SaveStatistics(ctx context.Context, fg *entity.FeatureGroup, stats *entity.Statistics) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, stats)
	return nil
}

func (s *fakeStore) LastStatistics(ctx context.Context, fg *entity.FeatureGroup) (*entity.Statistics, error) {
	return s.last, s.err
}

func (s *fakeStore) GetStatistics(ctx context.Context, fg *entity.FeatureGroup, commitTime string) (*entity.Statistics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byTime[commitTime], nil
}

func statsHandle(t *testing.T, cfg interface{}) *entity.FeatureGroup {
	t.Helper()
	fg, err := entity.NewFeatureGroup("sales", 1, 67, entity.FeatureGroupOptions{
		Features: []entity.Feature{
			{Name: "id", Type: "int", Primary: true},
			{Name: "val", Type: "double"},
			{Name: "label", Type: "string"},
		},
		StatisticsConfig: cfg,
	})
	require.NoError(t, err)
	return fg
}

func featureByName(t *testing.T, stats *entity.Statistics, name string) entity.FeatureStatistics {
	t.Helper()
	for _, fs := range stats.FeatureStatistics {
		if fs.Name == name {
			return fs
		}
	}
	t.Fatalf("no statistics computed for feature %q", name)
	return entity.FeatureStatistics{}
}

func TestComputeStatisticsProfilesColumns(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(store, nil)
	fg := statsHandle(t, true)

	df, err := dataframe.FromRows(
		[]string{"id", "val", "label"},
		[][]interface{}{
			{1, 2.0, "a"},
			{2, 4.0, "b"},
			{3, 6.0, "a"},
			{4, nil, nil},
		},
	)
	require.NoError(t, err)

	stats, err := engine.ComputeStatistics(context.Background(), fg, df)
	require.NoError(t, err)
	require.Len(t, stats.FeatureStatistics, 3)
	assert.NotEmpty(t, stats.CommitTime)

	val := featureByName(t, stats, "val")
	assert.Equal(t, int64(4), val.Count)
	assert.Equal(t, int64(1), val.NullCount)
	assert.Equal(t, int64(3), val.Distinct)
	require.NotNil(t, val.Mean)
	assert.InDelta(t, 4.0, *val.Mean, 1e-9)
	require.NotNil(t, val.Min)
	assert.Equal(t, 2.0, *val.Min)
	require.NotNil(t, val.Max)
	assert.Equal(t, 6.0, *val.Max)
	require.NotNil(t, val.StdDev)
	assert.InDelta(t, 1.632993161, *val.StdDev, 1e-6)

	label := featureByName(t, stats, "label")
	assert.Equal(t, int64(1), label.NullCount)
	assert.Equal(t, int64(2), label.Distinct)
	assert.Nil(t, label.Mean)
	assert.Nil(t, label.Histogram)

	// The snapshot was persisted as computed.
	require.Len(t, store.saved, 1)
	assert.Equal(t, stats, store.saved[0])
}

func TestComputeStatisticsColumnFilter(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(store, nil)
	fg := statsHandle(t, map[string]interface{}{
		"enabled": true,
		"columns": []string{"val"},
	})

	df, err := dataframe.FromRows(
		[]string{"id", "val", "label"},
		[][]interface{}{{1, 2.0, "a"}},
	)
	require.NoError(t, err)

	stats, err := engine.ComputeStatistics(context.Background(), fg, df)
	require.NoError(t, err)
	require.Len(t, stats.FeatureStatistics, 1)
	assert.Equal(t, "val", stats.FeatureStatistics[0].Name)
}

func TestComputeStatisticsCorrelations(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil)
	fg := statsHandle(t, map[string]interface{}{
		"enabled":      true,
		"correlations": true,
	})

	df, err := dataframe.FromRows(
		[]string{"id", "val", "label"},
		[][]interface{}{
			{1, 2.0, "a"},
			{2, 4.0, "b"},
			{3, 6.0, "c"},
		},
	)
	require.NoError(t, err)

	stats, err := engine.ComputeStatistics(context.Background(), fg, df)
	require.NoError(t, err)

	// Only the numeric pair correlates; string columns are skipped.
	require.Len(t, stats.Correlations, 1)
	corr := stats.Correlations[0]
	assert.Equal(t, "id", corr.FeatureA)
	assert.Equal(t, "val", corr.FeatureB)
	assert.InDelta(t, 1.0, corr.Value, 1e-9)
}

func TestComputeStatisticsCorrelationsAlignRows(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil)
	fg := statsHandle(t, map[string]interface{}{
		"enabled":      true,
		"correlations": true,
		"columns":      []string{"id", "val"},
	})

	// Nulls sit at different positions; only the rows where both columns
	// are present may be paired. Those pairs correlate perfectly.
	df, err := dataframe.FromRows(
		[]string{"id", "val"},
		[][]interface{}{
			{nil, 5.0},
			{1.0, 7.0},
			{10.0, nil},
			{2.0, 20.0},
		},
	)
	require.NoError(t, err)

	stats, err := engine.ComputeStatistics(context.Background(), fg, df)
	require.NoError(t, err)
	require.Len(t, stats.Correlations, 1)
	assert.InDelta(t, 1.0, stats.Correlations[0].Value, 1e-9)
}

func TestComputeStatisticsHistogram(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil)
	fg := statsHandle(t, map[string]interface{}{
		"enabled":    true,
		"histograms": true,
		"columns":    []string{"val"},
	})

	rows := make([][]interface{}, 0, 100)
	for i := 0; i < 100; i++ {
		rows = append(rows, []interface{}{float64(i)})
	}
	df, err := dataframe.FromRows([]string{"val"}, rows)
	require.NoError(t, err)

	stats, err := engine.ComputeStatistics(context.Background(), fg, df)
	require.NoError(t, err)

	hist := stats.FeatureStatistics[0].Histogram
	require.Len(t, hist, 10)

	var total int64
	for _, bucket := range hist {
		total += bucket.Count
	}
	assert.Equal(t, int64(100), total)
	assert.Equal(t, 0.0, hist[0].LowerBound)
	assert.Equal(t, 99.0, hist[9].UpperBound)
	// The maximum lands in the last bucket, not past it.
	assert.Equal(t, int64(10), hist[9].Count)
}

func TestComputeStatisticsConstantColumnSkipsHistogram(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil)
	fg := statsHandle(t, map[string]interface{}{
		"enabled":    true,
		"histograms": true,
		"columns":    []string{"val"},
	})

	df, err := dataframe.FromRows([]string{"val"}, [][]interface{}{{5.0}, {5.0}})
	require.NoError(t, err)

	stats, err := engine.ComputeStatistics(context.Background(), fg, df)
	require.NoError(t, err)

	val := stats.FeatureStatistics[0]
	assert.Nil(t, val.Histogram)
	require.NotNil(t, val.StdDev)
	assert.Equal(t, 0.0, *val.StdDev)
}

func TestComputeStatisticsStoreFailure(t *testing.T) {
	store := &fakeStore{err: &entity.RemoteError{Op: "save statistics", StatusCode: 500}}
	engine := NewEngine(store, nil)
	fg := statsHandle(t, true)

	df, err := dataframe.FromRows([]string{"val"}, [][]interface{}{{1.0}})
	require.NoError(t, err)

	_, err = engine.ComputeStatistics(context.Background(), fg, df)
	var remoteErr *entity.RemoteError
	require.ErrorAs(t, err, &remoteErr)
}

func TestGetLastAndGetDelegate(t *testing.T) {
	latest := &entity.Statistics{CommitTime: "20240102000000"}
	older := &entity.Statistics{CommitTime: "20240101000000"}
	store := &fakeStore{
		last:   latest,
		byTime: map[string]*entity.Statistics{"20240101000000": older},
	}
	engine := NewEngine(store, nil)
	fg := statsHandle(t, true)

	got, err := engine.GetLast(context.Background(), fg)
	require.NoError(t, err)
	assert.Equal(t, latest, got)

	got, err = engine.Get(context.Background(), fg, "20240101000000")
	require.NoError(t, err)
	assert.Equal(t, older, got)
}
