// Package stats exposes the relay's operational counters over expvar.
package stats

import (
	"expvar"
	"net/http"
	"time"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater serializes counter updates through a single goroutine so
// callers never contend on the expvar map.
type StatsUpdater struct {
	vars    *expvar.Map
	updates chan metricsUpdate
}

type metricsUpdate struct {
	name  string
	delta int64
}

func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:    new(expvar.Map).Init(),
		updates: make(chan metricsUpdate, 512),
	}

	startTime := time.Now()
	su.vars.Set("UptimeSeconds", expvar.Func(func() any {
		return int64(time.Since(startTime).Seconds())
	}))

	mux.Handle("GET /debug/vars", expvar.Handler())
	expvar.Publish("lanchat", su.vars)

	return su
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

// Value returns the current value of a registered counter.
func (su *StatsUpdater) Value(name string) int64 {
	v, ok := su.vars.Get(name).(*expvar.Int)
	if !ok {
		return 0
	}
	return v.Value()
}

func (su *StatsUpdater) Incr(name string) {
	su.updates <- metricsUpdate{name: name, delta: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updates <- metricsUpdate{name: name, delta: -1}
}

func (su *StatsUpdater) Run() {
	go func() {
		for upd := range su.updates {
			// updates for never-registered metrics are ignored
			if v, ok := su.vars.Get(upd.name).(*expvar.Int); ok {
				v.Add(upd.delta)
			}
		}
	}()
}

func (su *StatsUpdater) Stop() {
	close(su.updates)
}
