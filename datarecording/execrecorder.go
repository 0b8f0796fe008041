package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTable is the table that stores how a run was executed.
const ExecTable = "exec_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of an execution.
type ExecInfo struct {
	RunID    string
	Property string
	Value    string
}

// ExecRecorder records program execution: when it started and ended, the
// command line and any property the caller adds.
type ExecRecorder struct {
	runID    string
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates an ExecRecorder and its table.
func NewExecRecorder(recorder DataRecorder, runID string) *ExecRecorder {
	e := &ExecRecorder{
		runID:    runID,
		recorder: recorder,
	}

	recorder.CreateTable(ExecTable, ExecInfo{})

	return e
}

// Set adds a property.
func (e *ExecRecorder) Set(property, value string) {
	e.entries = append(e.entries, ExecInfo{e.runID, property, value})
}

// Start logs the current execution.
func (e *ExecRecorder) Start() {
	e.Set("Start Time", time.Now().Format(timeLayout))
	e.Set("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.Set("Working Directory", cwd)
}

// End writes the properties along with the exit time.
func (e *ExecRecorder) End() {
	e.Set("End Time", time.Now().Format(timeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
