package compute

import (
	"time"

	"github.com/steffengr/feature-store-api/entity"
)

const (
	wallclockDateLayout     = "20060102"
	wallclockDateTimeLayout = "20060102150405"
)

// ParseWallclockTime parses a commit timestamp in YYYYMMDD or YYYYMMDDhhmmss
// form, interpreted as UTC.
func ParseWallclockTime(value string) (time.Time, error) {
	var layout string
	switch len(value) {
	case len(wallclockDateLayout):
		layout = wallclockDateLayout
	case len(wallclockDateTimeLayout):
		layout = wallclockDateTimeLayout
	default:
		return time.Time{}, &entity.ValidationError{
			Field:  "wallclock_time",
			Reason: "must be in YYYYMMDD or YYYYMMDDhhmmss form",
		}
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return time.Time{}, &entity.ValidationError{
			Field:  "wallclock_time",
			Reason: "must be in YYYYMMDD or YYYYMMDDhhmmss form",
		}
	}
	return t, nil
}

// FormatWallclockTime renders a timestamp in YYYYMMDDhhmmss form, UTC.
func FormatWallclockTime(t time.Time) string {
	return t.UTC().Format(wallclockDateTimeLayout)
}
