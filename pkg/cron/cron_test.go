package cron_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/fedround/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		desc string
		expr string
		err  error
	}{
		{desc: "every minute", expr: "* * * * *"},
		{desc: "nightly", expr: "30 2 * * *"},
		{desc: "descriptor", expr: "@hourly"},
		{desc: "empty", expr: "", err: cron.ErrInvalidCronExpression},
		{desc: "seconds field", expr: "0 * * * * *", err: cron.ErrInvalidCronExpression},
		{desc: "garbage", expr: "every day", err: cron.ErrInvalidCronExpression},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := cron.Validate(tc.expr)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2026, 3, 10, 1, 15, 0, 0, time.UTC)

	cases := []struct {
		desc     string
		expr     string
		timezone string
		want     time.Time
	}{
		{
			desc: "utc",
			expr: "30 2 * * *",
			want: time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC),
		},
		{
			desc:     "unknown timezone falls back to utc",
			expr:     "30 2 * * *",
			timezone: "Mars/Olympus",
			want:     time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC),
		},
		{
			desc:     "fixed zone",
			expr:     "0 12 * * *",
			timezone: "Etc/GMT-2",
			want:     time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := cron.Parse(tc.expr, tc.timezone)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(s.Next(from)), "got %s", s.Next(from))
		})
	}

	var nilSchedule *cron.Schedule
	assert.True(t, nilSchedule.Next(from).IsZero())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := cron.Parse("@yearly", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cron.Run(ctx, s, slog.Default(), func(context.Context) {
			t.Error("job must not run")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
