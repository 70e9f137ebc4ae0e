package entity

import (
	"github.com/mitchellh/mapstructure"
)

// StatisticsConfig holds the settings for statistics computation of a
// feature group. An empty Columns list means all features are profiled.
type StatisticsConfig struct {
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
	Correlations bool     `json:"correlations" mapstructure:"correlations"`
	Histograms   bool     `json:"histograms" mapstructure:"histograms"`
	Columns      []string `json:"columns" mapstructure:"columns"`
}

// NormalizeStatisticsConfig maps every accepted configuration shape to a
// canonical StatisticsConfig:
//
//   - a StatisticsConfig or *StatisticsConfig is taken as is,
//   - a map is decoded field by field,
//   - a bool is shorthand for an enabled/disabled config with defaults,
//   - nil yields a disabled config.
//
// Any other shape is a ValidationError.
func NormalizeStatisticsConfig(value interface{}) (StatisticsConfig, error) {
	switch v := value.(type) {
	case nil:
		return StatisticsConfig{}, nil
	case StatisticsConfig:
		return v, nil
	case *StatisticsConfig:
		if v == nil {
			return StatisticsConfig{}, nil
		}
		return *v, nil
	case bool:
		if v {
			return StatisticsConfig{Enabled: true, Correlations: true, Histograms: true}, nil
		}
		return StatisticsConfig{}, nil
	case map[string]interface{}:
		var cfg StatisticsConfig
		if err := mapstructure.Decode(v, &cfg); err != nil {
			return StatisticsConfig{}, &ValidationError{Field: "statistics_config", Reason: err.Error()}
		}
		return cfg, nil
	default:
		return StatisticsConfig{}, &ValidationError{
			Field:  "statistics_config",
			Reason: "must be a StatisticsConfig, map, bool or nil",
		}
	}
}
