// Package ratelimit caps how many alerts a single run may emit, overall
// and per channel. A runaway feed or an overly-broad rule should degrade
// into a bounded burst, not a flood on public channels.
package ratelimit

import "fmt"

// Config defines alert caps for one run. Zero means unlimited.
type Config struct {
	MaxPerRun     int `yaml:"max_per_run"`
	MaxPerChannel int `yaml:"max_per_channel"`
}

// Violation describes a rejected alert.
type Violation struct {
	Channel string // empty for the run-wide limit
	Limit   int
	Count   int
}

func (v Violation) String() string {
	if v.Channel == "" {
		return fmt.Sprintf("run alert limit reached (%d/%d)", v.Count, v.Limit)
	}
	return fmt.Sprintf("channel %q alert limit reached (%d/%d)", v.Channel, v.Count, v.Limit)
}

// Limiter tracks alert counts within a single run. Not safe for concurrent
// use; the pipeline is single-threaded per invocation.
type Limiter struct {
	cfg        Config
	total      int
	perChannel map[string]int
}

// New creates a limiter for one run.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:        cfg,
		perChannel: make(map[string]int),
	}
}

// Allow reports whether one more alert may be emitted for the channel, and
// counts it when allowed. On rejection the returned Violation names the
// limit that was hit.
func (l *Limiter) Allow(channel string) (bool, *Violation) {
	if l.cfg.MaxPerRun > 0 && l.total >= l.cfg.MaxPerRun {
		return false, &Violation{Limit: l.cfg.MaxPerRun, Count: l.total}
	}
	if l.cfg.MaxPerChannel > 0 && l.perChannel[channel] >= l.cfg.MaxPerChannel {
		return false, &Violation{Channel: channel, Limit: l.cfg.MaxPerChannel, Count: l.perChannel[channel]}
	}
	l.total++
	l.perChannel[channel]++
	return true, nil
}

// Total returns how many alerts have been counted this run.
func (l *Limiter) Total() int {
	return l.total
}
