package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
)

// A ProgressBar tracks how far a run has advanced in simulated seconds.
type ProgressBar struct {
	sync.Mutex
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	StartTime time.Time         `json:"start_time"`
	Total     timing.VTimeInSec `json:"total"`
	Finished  timing.VTimeInSec `json:"finished"`
}

// Advance moves the bar to t. A bar never goes backward or past its total.
func (b *ProgressBar) Advance(t timing.VTimeInSec) {
	b.Lock()
	defer b.Unlock()

	if t > b.Total {
		t = b.Total
	}

	if t > b.Finished {
		b.Finished = t
	}
}

// Fraction returns the finished share of the bar.
func (b *ProgressBar) Fraction() float64 {
	b.Lock()
	defer b.Unlock()

	if b.Total <= 0 {
		return 1
	}

	return b.Finished / b.Total
}

// Func advances the bar to the time of every event the engine has run.
func (b *ProgressBar) Func(ctx hooking.HookCtx) {
	if ctx.Pos != timing.HookPosAfterEvent {
		return
	}

	if evt, ok := ctx.Item.(timing.Event); ok {
		b.Advance(evt.Time())
	}
}
