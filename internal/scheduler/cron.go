package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

var knownSchedules = map[string]string{
	"*/5 * * * *":  "Every 5 minutes",
	"*/15 * * * *": "Every 15 minutes",
	"*/30 * * * *": "Every 30 minutes",
	"0 * * * *":    "Hourly",
	"0 */6 * * *":  "Every 6 hours",
	"0 0 * * *":    "Daily at midnight",
}

// Describe names common schedules for the startup log.
func Describe(schedule string) string {
	if d, ok := knownSchedules[schedule]; ok {
		return d
	}
	return "Custom schedule: " + schedule
}

// NextRun calculates when schedule fires next after from.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
