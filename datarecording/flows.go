package datarecording

import (
	"context"

	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/mutation"
	"github.com/sarchlab/netexp/sim/hooking"
)

// Tables written by a FlowRecorder.
const (
	FlowTable     = "flows"
	MutationTable = "mutations"
	UsageTable    = "interface_usage"
)

// FlowRow is a flow summary as stored. Metrics that are not available are
// NULL.
type FlowRow struct {
	RunID    string
	FlowID   uint32
	Src      string
	Dst      string
	Protocol string
	SrcPort  uint16
	DstPort  uint16

	TxPackets   uint64
	TxBytes     uint64
	RxPackets   uint64
	RxBytes     uint64
	LostPackets uint64

	TimeFirstTx float64
	TimeLastRx  float64

	Duration      *float64
	Throughput    *float64
	RxThroughput  *float64
	AverageDelay  *float64
	AverageJitter *float64
	LossRatio     *float64
}

// MutationRow is an applied link mutation.
type MutationRow struct {
	RunID     string
	Time      float64
	Kind      string
	Link      int
	Node      int
	Interface int
	Capacity  float64
	Up        bool
}

// UsageRow is how busy one interface kept its link.
type UsageRow struct {
	RunID         string
	Node          string
	NodeID        int
	Interface     int
	Packets       uint64
	BusyTime      float64
	Utilization   float64
	AverageTxTime float64
}

// FlowRecorder stores flow summaries and mutations of a run. It is a hook:
// attached to a mutation.Mutator it records every mutation as it applies.
type FlowRecorder struct {
	runID    string
	recorder DataRecorder
}

// NewFlowRecorder creates a FlowRecorder and its tables.
func NewFlowRecorder(recorder DataRecorder, runID string) *FlowRecorder {
	recorder.CreateTable(FlowTable, FlowRow{})
	recorder.CreateTable(MutationTable, MutationRow{})
	recorder.CreateTable(UsageTable, UsageRow{})

	return &FlowRecorder{
		runID:    runID,
		recorder: recorder,
	}
}

func optional(m flow.Metric) *float64 {
	v, ok := m.Get()
	if !ok {
		return nil
	}

	return &v
}

// MakeFlowRow converts a summary into a row.
func MakeFlowRow(runID string, s flow.Summary) FlowRow {
	return FlowRow{
		RunID:         runID,
		FlowID:        uint32(s.ID),
		Src:           s.Key.Src.String(),
		Dst:           s.Key.Dst.String(),
		Protocol:      s.Key.Protocol.String(),
		SrcPort:       s.Key.SrcPort,
		DstPort:       s.Key.DstPort,
		TxPackets:     s.TxPackets,
		TxBytes:       s.TxBytes,
		RxPackets:     s.RxPackets,
		RxBytes:       s.RxBytes,
		LostPackets:   s.LostPackets,
		TimeFirstTx:   s.TimeFirstTx,
		TimeLastRx:    s.TimeLastRx,
		Duration:      optional(s.Duration),
		Throughput:    optional(s.ThroughputBps),
		RxThroughput:  optional(s.RxThroughputBps),
		AverageDelay:  optional(s.AverageDelay),
		AverageJitter: optional(s.AverageJitter),
		LossRatio:     optional(s.LossRatio),
	}
}

// RecordFlows stores the summaries and flushes.
func (r *FlowRecorder) RecordFlows(summaries []flow.Summary) {
	for _, s := range summaries {
		r.recorder.InsertData(FlowTable, MakeFlowRow(r.runID, s))
	}

	r.recorder.Flush()
}

// RecordUsage stores the usage of one interface. It is written with the next
// flush.
func (r *FlowRecorder) RecordUsage(u UsageRow) {
	r.recorder.InsertData(UsageTable, u)
}

// RecordMutation stores one mutation.
func (r *FlowRecorder) RecordMutation(m mutation.Record) {
	r.recorder.InsertData(MutationTable, MutationRow{
		RunID:     r.runID,
		Time:      m.Time,
		Kind:      m.Kind.String(),
		Link:      int(m.Link),
		Node:      int(m.Interface.Node),
		Interface: m.Interface.Index,
		Capacity:  float64(m.Capacity),
		Up:        m.Up,
	})
}

// Func records applied mutations.
func (r *FlowRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != mutation.HookPosMutationApplied {
		return
	}

	if m, ok := ctx.Item.(mutation.Record); ok {
		r.RecordMutation(m)
	}
}

func runFilter(runID string, limit, offset int, orderBy string) QueryParams {
	params := QueryParams{
		Limit:   limit,
		Offset:  offset,
		OrderBy: orderBy,
	}

	if runID != "" {
		params.Where = "RunID = ?"
		params.Args = []any{runID}
	}

	return params
}

// ReadFlows returns a page of the stored flows of one run, of every run if
// runID is empty, along with the number of matching rows. A limit of 0 reads
// every row.
func ReadFlows(
	ctx context.Context,
	r DataReader,
	runID string,
	limit, offset int,
) ([]FlowRow, int, error) {
	r.MapTable(FlowTable, FlowRow{})

	results, total, err := r.Query(ctx, FlowTable,
		runFilter(runID, limit, offset, "RunID, FlowID"))
	if err != nil {
		return nil, 0, err
	}

	rows := make([]FlowRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, *res.(*FlowRow))
	}

	return rows, total, nil
}

// ReadUsage returns the stored interface usage of one run, of every run if
// runID is empty.
func ReadUsage(
	ctx context.Context,
	r DataReader,
	runID string,
) ([]UsageRow, error) {
	r.MapTable(UsageTable, UsageRow{})

	results, _, err := r.Query(ctx, UsageTable,
		runFilter(runID, 0, 0, "RunID, NodeID, Interface"))
	if err != nil {
		return nil, err
	}

	rows := make([]UsageRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, *res.(*UsageRow))
	}

	return rows, nil
}
