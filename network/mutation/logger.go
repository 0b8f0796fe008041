package mutation

import (
	"log"

	"github.com/sarchlab/netexp/network/routing"
	"github.com/sarchlab/netexp/sim/hooking"
)

// Logger is a hook that writes applied mutations and route recomputations.
type Logger struct {
	logger *log.Logger
}

// NewLogger creates a Logger that writes into logger.
func NewLogger(logger *log.Logger) *Logger {
	return &Logger{logger: logger}
}

// Func writes one line per mutation or recomputation.
func (l *Logger) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosMutationApplied:
		rec, ok := ctx.Item.(Record)
		if !ok {
			return
		}

		l.logger.Printf("mutation: %s", rec)
	case routing.HookPosRoutesRecomputed:
		l.logger.Printf("routes recomputed (#%v)", ctx.Detail)
	}
}
