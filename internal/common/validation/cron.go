package validation

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser parses standard five-field expressions and @descriptors such as @hourly
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron validates a cron expression together with its IANA timezone and returns the
// schedule evaluated in that zone
func ParseCron(expression, timezone string) (cron.Schedule, *time.Location, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	sched, err := CronParser.Parse(expression)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	return sched, loc, nil
}

// NextRun returns the next activation of expression after from, computed in timezone
func NextRun(expression, timezone string, from time.Time) (time.Time, error) {
	sched, loc, err := ParseCron(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from.In(loc)).UTC(), nil
}
