package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	dispatch "github.com/assaka/daino-sub010"
)

// parser accepts standard five-field expressions and descriptors such as
// "@hourly" or "@every 30s".
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses expr. Errors wrap dispatch.ErrInvalidSchedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", dispatch.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// NextRun returns the first activation of expr strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from).UTC(), nil
}
