package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatisticsConfig(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    StatisticsConfig
		wantErr bool
	}{
		{
			name:  "nil disables",
			value: nil,
			want:  StatisticsConfig{},
		},
		{
			name:  "true enables with defaults",
			value: true,
			want:  StatisticsConfig{Enabled: true, Correlations: true, Histograms: true},
		},
		{
			name:  "false disables",
			value: false,
			want:  StatisticsConfig{},
		},
		{
			name:  "struct taken as is",
			value: StatisticsConfig{Enabled: true, Columns: []string{"val"}},
			want:  StatisticsConfig{Enabled: true, Columns: []string{"val"}},
		},
		{
			name:  "pointer dereferenced",
			value: &StatisticsConfig{Enabled: true, Histograms: true},
			want:  StatisticsConfig{Enabled: true, Histograms: true},
		},
		{
			name:  "nil pointer disables",
			value: (*StatisticsConfig)(nil),
			want:  StatisticsConfig{},
		},
		{
			name: "map decoded field by field",
			value: map[string]interface{}{
				"enabled":      true,
				"correlations": true,
				"columns":      []string{"id", "val"},
			},
			want: StatisticsConfig{Enabled: true, Correlations: true, Columns: []string{"id", "val"}},
		},
		{
			name:    "string rejected",
			value:   "enabled",
			wantErr: true,
		},
		{
			name:    "int rejected",
			value:   1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeStatisticsConfig(tt.value)
			if tt.wantErr {
				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, "statistics_config", validationErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetStatisticsConfigRejectsUnknownShape(t *testing.T) {
	fg, err := NewFeatureGroup("sales", 1, 67, FeatureGroupOptions{StatisticsConfig: true})
	require.NoError(t, err)

	err = fg.SetStatisticsConfig(42)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	// The previous configuration is untouched.
	assert.True(t, fg.StatisticsConfig().Enabled)
}
