package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"satsalert/internal/eventbus"
	"satsalert/pkg/logx"
)

var ErrNameRequired = errors.New("scheduler: name required")

const (
	EventRun     = "scheduler.run"
	EventSkipped = "scheduler.skipped"
)

// Config controls the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

// RunEvent is the Data of EventRun and EventSkipped.
type RunEvent struct {
	Name  string        `json:"name"`
	Took  time.Duration `json:"took,omitempty"`
	Error string        `json:"error,omitempty"`
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	state         *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base is the parent context of every run; Stop cancels it.
	base   context.Context
	cancel context.CancelFunc
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}
