package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/flowdeck/flowdeck/internal/catalog"
)

// defaultDateFormat is the reference layout used when the caller does not
// pass a "format" parameter.
const defaultDateFormat = "02/01/2006"

// weekdayNames maps the wire convention (0 = Monday .. 6 = Sunday) to names.
var weekdayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// DatePlugin is the factory for the "date" tool. It needs no credentials,
// so any profile config produces a working instance.
type DatePlugin struct{}

// NewDatePlugin creates the date tool factory.
func NewDatePlugin() *DatePlugin { return &DatePlugin{} }

func (p *DatePlugin) Name() string { return "date" }

func (p *DatePlugin) New(_ map[string]string) (catalog.Tool, error) {
	return &dateTool{now: time.Now}, nil
}

// dateTool computes relative dates. The clock is a field so tests can pin it.
type dateTool struct {
	now func() time.Time
}

func (t *dateTool) Authenticate(_ context.Context) (bool, error) { return true, nil }

func (t *dateTool) AvailableActions() []string { return []string{"calculate_date"} }

func (t *dateTool) Execute(_ context.Context, action string, params map[string]any) (map[string]any, error) {
	if action != "calculate_date" {
		return nil, fmt.Errorf("action %q not supported", action)
	}
	return t.calculateDate(params)
}

// calculateDate shifts today by "days" and "weeks", or forward to the next
// occurrence of "weekday" (0 = Monday .. 6 = Sunday) when neither offset is
// set. The result carries the formatted date, its day name and a short
// human description of the shift.
func (t *dateTool) calculateDate(params map[string]any) (map[string]any, error) {
	days, err := intParam(params, "days", 0)
	if err != nil {
		return nil, err
	}
	weeks, err := intParam(params, "weeks", 0)
	if err != nil {
		return nil, err
	}
	format, _ := params["format"].(string)
	if format == "" {
		format = defaultDateFormat
	}

	today := t.now()
	target := today
	description := "today"

	switch {
	case days != 0 || weeks != 0:
		target = today.AddDate(0, 0, days+weeks*7)
		description = describeShift(days, weeks)
	case params["weekday"] != nil:
		weekday, err := intParam(params, "weekday", 0)
		if err != nil {
			return nil, err
		}
		if weekday < 0 || weekday > 6 {
			return nil, fmt.Errorf("weekday (%d) must be between 0 (Monday) and 6 (Sunday)", weekday)
		}
		ahead := weekday - mondayBased(today.Weekday())
		if ahead <= 0 {
			ahead += 7
		}
		target = today.AddDate(0, 0, ahead)
		description = "next " + weekdayNames[weekday]
	}

	return map[string]any{
		"date":        target.Format(format),
		"day":         weekdayNames[mondayBased(target.Weekday())],
		"description": description,
		"calculation": map[string]any{"days": days, "weeks": weeks},
	}, nil
}

func describeShift(days, weeks int) string {
	switch {
	case days == 1 && weeks == 0:
		return "tomorrow"
	case days == -1 && weeks == 0:
		return "yesterday"
	case days == 2 && weeks == 0:
		return "day after tomorrow"
	case days == -2 && weeks == 0:
		return "day before yesterday"
	case weeks == 1 && days == 0:
		return "in one week"
	case weeks == -1 && days == 0:
		return "one week ago"
	}

	var parts string
	if weeks != 0 {
		parts = fmt.Sprintf("%d %s", abs(weeks), plural("week", weeks))
	}
	if days != 0 {
		if parts != "" {
			parts += " and "
		}
		parts += fmt.Sprintf("%d %s", abs(days), plural("day", days))
	}
	if weeks > 0 || days > 0 {
		return "in " + parts
	}
	return parts + " ago"
}

// mondayBased converts Go's Sunday-first weekday to the 0 = Monday wire
// convention.
func mondayBased(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func plural(unit string, n int) string {
	if abs(n) > 1 {
		return unit + "s"
	}
	return unit
}
