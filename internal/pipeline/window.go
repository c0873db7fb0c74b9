package pipeline

import (
	"fmt"
	"time"

	"dailybrief/internal/core"
)

// reportTimeZone anchors the coverage window. The briefing covers a
// US-Eastern calendar day regardless of where the pipeline runs.
const reportTimeZone = "America/New_York"

// Window computes the 24-hour coverage window for a report date: it ends
// at local midnight starting that date and covers the preceding day. The
// zone must be loadable; running with a wrong window silently misfiles a
// whole day of items.
func Window(reportDate string) (core.CoverageWindow, error) {
	loc, err := time.LoadLocation(reportTimeZone)
	if err != nil {
		return core.CoverageWindow{}, fmt.Errorf("loading %s: %w", reportTimeZone, err)
	}
	day, err := time.ParseInLocation("2006-01-02", reportDate, loc)
	if err != nil {
		return core.CoverageWindow{}, fmt.Errorf("report date %q: %w", reportDate, err)
	}
	return core.CoverageWindow{
		Start: day.Add(-24 * time.Hour),
		End:   day,
	}, nil
}

// DefaultReportDate returns today's date in the report zone.
func DefaultReportDate() (string, error) {
	loc, err := time.LoadLocation(reportTimeZone)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", reportTimeZone, err)
	}
	return time.Now().In(loc).Format("2006-01-02"), nil
}
