// Package scheduler registers named periodic jobs on robfig/cron.
//
// A schedule is either a cron expression ("0 17 * * *", "@hourly") or an
// interval ("60s", "02:30", "@every 1m"). Each job runs with an optional
// timeout and never overlaps itself: a trigger that fires while the
// previous run is still going is skipped.
package scheduler
