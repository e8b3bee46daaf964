package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dbehnke/turbocodec/pkg/codec"
	"github.com/dbehnke/turbocodec/pkg/logger"
)

// Source supplies cumulative codec counters. *codec.Codec implements it.
type Source interface {
	Stats() codec.Stats
}

// Report covers the interval between two consecutive reports.
type Report struct {
	At       time.Time     `json:"at"`
	Interval time.Duration `json:"interval"`
	Totals   codec.Stats   `json:"totals"`
	Delta    codec.Stats   `json:"delta"`

	EncodeRate float64 `json:"encodeRate"` // calls per second
	DecodeRate float64 `json:"decodeRate"`
	// CorrectionRate is corrected systematic bits per decoded bit.
	CorrectionRate float64 `json:"correctionRate"`
}

// Reporter logs codec throughput on a cron schedule.
type Reporter struct {
	source   Source
	schedule string
	logger   *logger.Logger
	clock    Clock
	cron     *cron.Cron
	onReport []func(Report)

	mu      sync.RWMutex
	started time.Time
	prev    codec.Stats
	prevAt  time.Time
	last    *Report
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(r *Reporter) { r.clock = c }
}

// WithOnReport registers fn to receive every report after it is logged.
func WithOnReport(fn func(Report)) Option {
	return func(r *Reporter) { r.onReport = append(r.onReport, fn) }
}

// NewReporter validates schedule, a standard five-field cron expression or a
// descriptor such as "@every 1m".
func NewReporter(source Source, schedule string, log *logger.Logger, opts ...Option) (*Reporter, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = logger.Nop()
	}

	r := &Reporter{
		source:   source,
		schedule: schedule,
		logger:   log.WithComponent("stats"),
		clock:    RealClock{},
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.started = r.clock.Now()
	r.prevAt = r.started
	return r, nil
}

// Start schedules the report job.
func (r *Reporter) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.Collect() }); err != nil {
		return fmt.Errorf("failed to schedule stats report: %w", err)
	}
	r.cron.Start()
	r.logger.Info("Stats reporter started", logger.String("schedule", r.schedule))
	return nil
}

// Stop waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Stats reporter stopped")
}

// Collect takes a snapshot, logs it and makes it the latest report.
func (r *Reporter) Collect() Report {
	now := r.clock.Now()
	totals := r.source.Stats()

	r.mu.Lock()
	report := Report{
		At:       now,
		Interval: now.Sub(r.prevAt),
		Totals:   totals,
		Delta:    diff(totals, r.prev),
	}
	if secs := report.Interval.Seconds(); secs > 0 {
		report.EncodeRate = float64(report.Delta.EncodeCalls) / secs
		report.DecodeRate = float64(report.Delta.DecodeCalls) / secs
	}
	if report.Delta.BitsDecoded > 0 {
		report.CorrectionRate = float64(report.Delta.CorrectedBits) / float64(report.Delta.BitsDecoded)
	}
	r.prev = totals
	r.prevAt = now
	r.last = &report
	r.mu.Unlock()

	r.logger.Info("Codec statistics",
		logger.Uint64("encodes", report.Delta.EncodeCalls),
		logger.Uint64("decodes", report.Delta.DecodeCalls),
		logger.Uint64("malformed", report.Delta.MalformedPackets),
		logger.Uint64("errors", report.Delta.Errors),
		logger.Uint64("corrected_bits", report.Delta.CorrectedBits),
		logger.Float64("correction_rate", report.CorrectionRate),
		logger.Duration("interval", report.Interval),
		logger.Duration("uptime", r.Uptime()))

	for _, fn := range r.onReport {
		fn(report)
	}
	return report
}

// Last returns the most recent report, or nil before the first one.
func (r *Reporter) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	report := *r.last
	return &report
}

// Uptime is the time since the reporter was created.
func (r *Reporter) Uptime() time.Duration {
	return r.clock.Now().Sub(r.started)
}

func diff(cur, prev codec.Stats) codec.Stats {
	return codec.Stats{
		EncodeCalls:      cur.EncodeCalls - prev.EncodeCalls,
		DecodeCalls:      cur.DecodeCalls - prev.DecodeCalls,
		Errors:           cur.Errors - prev.Errors,
		MalformedPackets: cur.MalformedPackets - prev.MalformedPackets,
		BitsEncoded:      cur.BitsEncoded - prev.BitsEncoded,
		BitsDecoded:      cur.BitsDecoded - prev.BitsDecoded,
		CorrectedBits:    cur.CorrectedBits - prev.CorrectedBits,
	}
}
