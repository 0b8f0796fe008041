package simulation

import (
	"sort"

	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/hooking"
)

// transmitTask is the kind of task the network reports while an interface
// puts a packet on its link.
const transmitTask = "transmit"

// InterfaceUsage tells how busy an interface kept its link.
type InterfaceUsage struct {
	Interface   topology.InterfaceRef
	Node        string
	Packets     uint64
	BusyTime    float64
	Utilization float64

	// AverageTxTime is the mean time to put one packet on the link. It is
	// zero if the interface sent nothing.
	AverageTxTime float64
}

type interfaceTracers struct {
	ref  topology.InterfaceRef
	busy *hooking.BusyTimeTracer
	avg  *hooking.TotalAvgTimeTracer
}

// usageTracer splits the transmit tasks of the network by interface.
type usageTracer struct {
	byWhere map[string]*interfaceTracers
	byTask  map[string]*interfaceTracers
}

func newUsageTracer(
	clock hooking.TimeTeller,
	topo *topology.Topology,
) *usageTracer {
	t := &usageTracer{
		byWhere: make(map[string]*interfaceTracers),
		byTask:  make(map[string]*interfaceTracers),
	}

	for _, n := range topo.Nodes() {
		for _, i := range n.Interfaces {
			if i.IsLoopback() {
				continue
			}

			where := i.Ref().String()
			t.byWhere[where] = &interfaceTracers{
				ref: i.Ref(),
				busy: hooking.NewBusyTimeTracer(clock,
					hooking.TasksAt(transmitTask, where)),
				avg: hooking.NewAverageTimeTracer(clock,
					hooking.TasksAt(transmitTask, where)),
			}
		}
	}

	return t
}

func (t *usageTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hooking.HookPosTaskStart:
		start := ctx.Item.(hooking.TaskStart)

		tracers, ok := t.byWhere[start.Where]
		if !ok {
			return
		}

		t.byTask[start.ID] = tracers
		tracers.busy.Func(ctx)
		tracers.avg.Func(ctx)
	case hooking.HookPosTaskEnd:
		end := ctx.Item.(hooking.TaskEnd)

		tracers, ok := t.byTask[end.ID]
		if !ok {
			return
		}

		delete(t.byTask, end.ID)
		tracers.busy.Func(ctx)
		tracers.avg.Func(ctx)
	}
}

func (t *usageTracer) report(topo *topology.Topology) []InterfaceUsage {
	usage := make([]InterfaceUsage, 0, len(t.byWhere))

	for _, tracers := range t.byWhere {
		u := InterfaceUsage{
			Interface:   tracers.ref,
			Packets:     tracers.busy.TaskCount(),
			BusyTime:    tracers.busy.BusyTime(),
			Utilization: tracers.busy.Utilization(),
		}

		if avg, ok := tracers.avg.AverageTime(); ok {
			u.AverageTxTime = avg
		}

		if n, err := topo.Node(tracers.ref.Node); err == nil {
			u.Node = n.Name
		}

		usage = append(usage, u)
	}

	sort.Slice(usage, func(i, j int) bool {
		a, b := usage[i].Interface, usage[j].Interface
		if a.Node != b.Node {
			return a.Node < b.Node
		}

		return a.Index < b.Index
	})

	return usage
}
