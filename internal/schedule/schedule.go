package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// standardParser accepts the five-field crontab syntax plus the @every and
// @hourly style descriptors, matching what crontab(1) itself takes.
var standardParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// specials maps descriptor schedules that crontab understands to their
// descriptions. @reboot has no five-field equivalent so it is handled
// outside the parser.
var specials = map[string]string{
	"@reboot":   "Every boot",
	"@hourly":   "Every hour (0 * * * *)",
	"@daily":    "Every day at midnight (0 0 * * *)",
	"@midnight": "Every day at midnight (0 0 * * *)",
	"@weekly":   "Every week on Sunday (0 0 * * 0)",
	"@monthly":  "Every month on 1st (0 0 1 * *)",
	"@yearly":   "Every year on Jan 1st (0 0 1 1 *)",
	"@annually": "Every year on Jan 1st (0 0 1 1 *)",
}

// IsValid reports whether the expression is acceptable to crontab.
func IsValid(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	if expr == "@reboot" {
		return true
	}
	_, err := standardParser.Parse(expr)
	return err == nil
}

// Fields is a parsed schedule. For descriptor schedules only Expr and
// Description are set.
type Fields struct {
	Expr        string
	Special     bool
	Description string
	Minute      string
	Hour        string
	Day         string
	Month       string
	Weekday     string
}

// Parse splits a schedule into its components, rejecting anything crontab
// would not accept.
func Parse(expr string) (Fields, error) {
	expr = strings.TrimSpace(expr)
	if !IsValid(expr) {
		return Fields{}, fmt.Errorf("invalid schedule: %q", expr)
	}
	if desc, ok := specials[expr]; ok {
		return Fields{Expr: expr, Special: true, Description: desc}, nil
	}
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Fields{}, fmt.Errorf("schedule %q: expected 5 fields, got %d", expr, len(parts))
	}
	return Fields{
		Expr:    expr,
		Minute:  parts[0],
		Hour:    parts[1],
		Day:     parts[2],
		Month:   parts[3],
		Weekday: parts[4],
	}, nil
}

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var monthNames = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// HumanReadable renders a best-effort English description of a schedule.
// Expressions it cannot break down come back as "Custom schedule: ...".
func HumanReadable(expr string) string {
	f, err := Parse(expr)
	if err != nil {
		return fmt.Sprintf("Custom schedule: %s", expr)
	}
	if f.Special {
		return f.Description
	}

	var parts []string

	switch {
	case f.Minute == "*":
		parts = append(parts, "every minute")
	case strings.Contains(f.Minute, "/"):
		interval := f.Minute[strings.Index(f.Minute, "/")+1:]
		parts = append(parts, fmt.Sprintf("every %s minutes", interval))
	default:
		parts = append(parts, fmt.Sprintf("at minute %s", f.Minute))
	}

	if f.Hour != "*" {
		if strings.Contains(f.Hour, "/") {
			interval := f.Hour[strings.Index(f.Hour, "/")+1:]
			parts = append(parts, fmt.Sprintf("every %s hours", interval))
		} else {
			parts = append(parts, fmt.Sprintf("at hour %s", f.Hour))
		}
	}

	switch {
	case f.Day != "*" && f.Weekday != "*":
		parts = append(parts, fmt.Sprintf("on day %s and weekday %s", f.Day, f.Weekday))
	case f.Day != "*":
		parts = append(parts, fmt.Sprintf("on day %s", f.Day))
	case f.Weekday != "*":
		if n, err := strconv.Atoi(f.Weekday); err == nil && n >= 0 && n < len(weekdayNames) {
			parts = append(parts, fmt.Sprintf("on %s", weekdayNames[n]))
		} else {
			parts = append(parts, fmt.Sprintf("on weekday %s", f.Weekday))
		}
	}

	if f.Month != "*" {
		if n, err := strconv.Atoi(f.Month); err == nil && n >= 1 && n <= len(monthNames) {
			parts = append(parts, fmt.Sprintf("in %s", monthNames[n-1]))
		} else {
			parts = append(parts, fmt.Sprintf("in month %s", f.Month))
		}
	}

	return strings.Join(parts, " ")
}

// Presets are commonly used schedules, keyed by a stable name.
var Presets = map[string]string{
	"EVERY_MINUTE":     "* * * * *",
	"EVERY_5_MINUTES":  "*/5 * * * *",
	"EVERY_15_MINUTES": "*/15 * * * *",
	"EVERY_30_MINUTES": "*/30 * * * *",
	"HOURLY":           "@hourly",
	"EVERY_2_HOURS":    "0 */2 * * *",
	"EVERY_6_HOURS":    "0 */6 * * *",
	"EVERY_12_HOURS":   "0 */12 * * *",
	"DAILY":            "@daily",
	"DAILY_6AM":        "0 6 * * *",
	"DAILY_NOON":       "0 12 * * *",
	"DAILY_6PM":        "0 18 * * *",
	"TWICE_DAILY":      "0 6,18 * * *",
	"WEEKDAYS_8AM":     "0 8 * * 1-5",
	"WEEKLY":           "@weekly",
	"MONTHLY":          "@monthly",
	"YEARLY":           "@yearly",
	"ON_REBOOT":        "@reboot",
}
