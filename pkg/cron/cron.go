// Package cron triggers recurring jobs from five-field cron expressions.
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidCronExpression = errors.New("invalid cron expression")

type Schedule struct {
	spec cron.Schedule
	loc  *time.Location
}

// Parse reads a standard minute, hour, day-of-month, month, day-of-week
// expression evaluated in timezone. An unknown timezone falls back to UTC.
func Parse(expr, timezone string) (*Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidCronExpression
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronExpression, err)
	}

	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	return &Schedule{spec: spec, loc: loc}, nil
}

func Validate(expr string) error {
	_, err := Parse(expr, "")

	return err
}

func (s *Schedule) Next(from time.Time) time.Time {
	if s == nil || s.spec == nil {
		return time.Time{}
	}

	return s.spec.Next(from.In(s.loc))
}

// Run calls job at every activation of s until ctx is done. Activations that
// fall while job is still running are skipped.
func Run(ctx context.Context, s *Schedule, logger *slog.Logger, job func(context.Context)) error {
	for {
		next := s.Next(time.Now())
		logger.Info("Next scheduled job", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
			job(ctx)
		}
	}
}
