package stats

import "time"

// Clock is a small abstraction over time so we can inject deterministic times in tests
type Clock interface {
	Now() time.Time
}

// RealClock uses the real time.Now
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock returns a fixed time; tests advance it with Advance.
type FakeClock struct {
	NowTime time.Time
}

func (f *FakeClock) Now() time.Time { return f.NowTime }

func (f *FakeClock) Advance(d time.Duration) { f.NowTime = f.NowTime.Add(d) }
