package batchgate

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// janitor drives periodic cache sweeps on a cron schedule.
type janitor struct {
	cron *cron.Cron
}

// newJanitor schedules job on the given spec: any standard five-field cron
// expression or a descriptor like "@every 1m0s".
func newJanitor(spec string, job func()) (*janitor, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("batchgate: cleanup schedule %q: %w", spec, err)
	}
	return &janitor{cron: c}, nil
}

func (j *janitor) start() {
	j.cron.Start()
}

// stop halts scheduling and waits for a running sweep to finish.
func (j *janitor) stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
