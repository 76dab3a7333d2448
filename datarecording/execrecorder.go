package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTableName is the table execution information is written to.
const ExecTableName = "exec_info"

const execTimeLayout = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a program execution.
type ExecInfo struct {
	Property string
	Value    string
}

// An ExecRecorder writes what was run, where and when next to the data of the
// run.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the execution table if needed.
func NewExecRecorder(recorder DataRecorder) (*ExecRecorder, error) {
	err := recorder.CreateTable(ExecTableName, ExecInfo{})
	if err != nil {
		return nil, err
	}

	return &ExecRecorder{recorder: recorder}, nil
}

// Start notes the start time, the command line and the working directory.
func (e *ExecRecorder) Start() {
	e.Set("Start Time", time.Now().Format(execTimeLayout))
	e.Set("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err == nil {
		e.Set("Working Directory", cwd)
	}
}

// Set adds a property. Properties are written by End, in the order they were
// set.
func (e *ExecRecorder) Set(property, value string) {
	e.entries = append(e.entries, ExecInfo{property, value})
}

// End writes every property along with the end time and flushes the
// recorder.
func (e *ExecRecorder) End() error {
	e.Set("End Time", time.Now().Format(execTimeLayout))

	for _, entry := range e.entries {
		err := e.recorder.InsertData(ExecTableName, entry)
		if err != nil {
			return err
		}
	}

	e.entries = nil

	return e.recorder.Flush()
}
