package hooking

// Hook positions of tasks, work that takes time in a domain such as a packet
// being transmitted by an interface.
var (
	HookPosTaskStart = &HookPos{Name: "HookPosTaskStart"}
	HookPosTaskEnd   = &HookPos{Name: "HookPosTaskEnd"}
)

// TaskStart is data that is passed to the hook when a task starts.
type TaskStart struct {
	ID       string
	ParentID string
	Kind     string
	What     string
	Where    string
}

// TaskEnd is data that is passed to the hook when a task ends.
type TaskEnd struct {
	ID string
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t TaskStart) bool

// TasksOfKind selects the tasks of one kind.
func TasksOfKind(kind string) TaskFilter {
	return func(t TaskStart) bool {
		return t.Kind == kind
	}
}

// TasksAt selects the tasks of one kind that run at one place.
func TasksAt(kind, where string) TaskFilter {
	return func(t TaskStart) bool {
		return t.Kind == kind && t.Where == where
	}
}

// A TimeTeller can tell the current time. This interface is recreated here
// to break a circular dependency between the timing package and the
// hooking package.
type TimeTeller interface {
	Now() float64
}
