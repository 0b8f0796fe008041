package traffic

import (
	"log"

	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
)

// Logger is a hook that writes a line when a generator finishes and,
// optionally, for every packet sent.
type Logger struct {
	logger     *log.Logger
	timeTeller timing.TimeTeller
	perPacket  bool
}

// NewLogger creates a Logger. Per-packet lines are only written when
// perPacket is set.
func NewLogger(
	logger *log.Logger,
	timeTeller timing.TimeTeller,
	perPacket bool,
) *Logger {
	return &Logger{
		logger:     logger,
		timeTeller: timeTeller,
		perPacket:  perPacket,
	}
}

type named interface {
	Name() string
}

// Func writes the log line.
func (l *Logger) Func(ctx hooking.HookCtx) {
	name := "?"
	if n, ok := ctx.Item.(named); ok {
		name = n.Name()
	}

	switch ctx.Pos {
	case HookPosPacketSent:
		if l.perPacket {
			l.logger.Printf("%.10f, %s sent %v bytes",
				l.timeTeller.Now(), name, ctx.Detail)
		}
	case HookPosGeneratorDone:
		state, ok := ctx.Detail.(GeneratorState)
		if !ok {
			return
		}

		l.logger.Printf("%.10f, %s done, %d packets, %d bytes",
			l.timeTeller.Now(), name, state.PacketsSent, state.BytesSent)
	}
}
