package hooking

// BusyTimeTracer traces the time that a domain is processing a kind of task.
// If the task processing time overlaps, this tracer only considers one
// instance of the overlapped time. Tasks must be reported in time order.
type BusyTimeTracer struct {
	timeTeller TimeTeller
	filter     TaskFilter
	inflight   map[string]struct{}
	busySince  float64
	busyTime   float64
	tasks      uint64
}

// NewBusyTimeTracer creates a new BusyTimeTracer. A nil filter accepts every
// task.
func NewBusyTimeTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *BusyTimeTracer {
	return &BusyTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		inflight:   make(map[string]struct{}),
	}
}

// Func records the start end of a task.
func (t *BusyTimeTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// BusyTime returns the time spent on the tasks so far, including the
// current busy period.
func (t *BusyTimeTracer) BusyTime() float64 {
	if len(t.inflight) == 0 {
		return t.busyTime
	}

	return t.busyTime + t.timeTeller.Now() - t.busySince
}

// Utilization returns the busy share of the time elapsed since 0.
func (t *BusyTimeTracer) Utilization() float64 {
	now := t.timeTeller.Now()
	if now <= 0 {
		return 0
	}

	return t.BusyTime() / now
}

// TaskCount returns the number of tasks that have completed.
func (t *BusyTimeTracer) TaskCount() uint64 {
	return t.tasks
}

// TerminateAllTasks will mark all the tasks as completed.
func (t *BusyTimeTracer) TerminateAllTasks() {
	for id := range t.inflight {
		t.EndTask(TaskEnd{ID: id})
	}
}

// StartTask records the task start time
func (t *BusyTimeTracer) StartTask(taskStart TaskStart) {
	if t.filter != nil && !t.filter(taskStart) {
		return
	}

	if len(t.inflight) == 0 {
		t.busySince = t.timeTeller.Now()
	}

	t.inflight[taskStart.ID] = struct{}{}
}

// EndTask records the end of the task
func (t *BusyTimeTracer) EndTask(taskEnd TaskEnd) {
	if _, ok := t.inflight[taskEnd.ID]; !ok {
		return
	}

	delete(t.inflight, taskEnd.ID)
	t.tasks++

	if len(t.inflight) == 0 {
		t.busyTime += t.timeTeller.Now() - t.busySince
	}
}
