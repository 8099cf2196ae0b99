package types

import (
	"fmt"
	"strconv"
	"strings"
)

// LPID identifies a logical process in the simulation. LPs address each
// other exclusively by id; no object pointers cross LP boundaries.
type LPID int

// EventKind is the tag of a simulation message. Each LP exhaustively
// matches the subset it accepts and drops the rest with a warning.
type EventKind int

const (
	KickOff EventKind = iota
	JobSubmit
	WorkEnqueue
	WorkCheckout
	WorkDone
	DownloadReq
	DownloadAck
	UploadReq
	UploadAck
	InputDataDownload
	OutputDataUpload
	ComputeDone
	OutputUploaded
)

var eventKindNames = map[EventKind]string{
	KickOff:           "KICK_OFF",
	JobSubmit:         "JOB_SUBMIT",
	WorkEnqueue:       "WORK_ENQUEUE",
	WorkCheckout:      "WORK_CHECKOUT",
	WorkDone:          "WORK_DONE",
	DownloadReq:       "DNLOAD_REQ",
	DownloadAck:       "DNLOAD_ACK",
	UploadReq:         "UPLOAD_REQ",
	UploadAck:         "UPLOAD_ACK",
	InputDataDownload: "INPUT_DATA_DOWNLOAD",
	OutputDataUpload:  "OUTPUT_DATA_UPLOAD",
	ComputeDone:       "COMPUTE_DONE",
	OutputUploaded:    "OUTPUT_UPLOADED",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Message is a timestamped event payload. Messages are value types owned
// by the kernel between enqueue and delivery.
type Message struct {
	Kind     EventKind
	Src      LPID
	NextHop  LPID
	LastHop  LPID
	ObjectID string
	Size     uint64
}

// SchedPolicy selects how the server picks a workunit for a checkout.
type SchedPolicy int

const (
	// PolicyFIFO hands out the oldest queued workunit.
	PolicyFIFO SchedPolicy = iota
	// PolicyBestFit hands out the queued workunit with the smallest
	// input payload, minimizing data movement per checkout.
	PolicyBestFit
	// PolicyGreedy hands out the queued workunit with the largest
	// input payload, draining big transfers early.
	PolicyGreedy
)

// WorkerGroup names a network domain of workers. Group assignment comes
// from the topology config, never from an LP id range.
type WorkerGroup string

const (
	GroupLocal  WorkerGroup = "local"
	GroupRemote WorkerGroup = "remote"
)

// Workunit is one shard of a task, the unit of worker consumption.
// Immutable after load except for the transfer timestamps, which the
// owning worker stamps while the unit is checked out.
type Workunit struct {
	ID          string
	JobID       string
	TaskIndex   int
	Cmd         string
	Runtime     float64 // seconds
	SizeInfile  uint64  // bytes
	SizeOutfile uint64  // bytes
	TimeDataIn  float64 // reference transfer time from the trace, seconds
	TimeDataOut float64

	DownloadStart float64
	DownloadEnd   float64
	UploadStart   float64
	UploadEnd     float64
}

// TaskState tracks a task through the server's dependency resolution.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskQueued
	TaskCompleted
)

// Job is a pipeline instance from the job trace. TaskDep is the
// dependency matrix: TaskDep[i][j] == 1 means task i depends on task j;
// a task is ready when its whole row is zero.
type Job struct {
	ID          string
	Created     float64 // epoch seconds
	Pipeline    string
	InputSize   uint64
	NumTasks    int
	RemainTasks int
	TaskSplits  []int
	TaskRemain  []int
	TaskStates  []TaskState
	TaskDep     [][]int
}

// NewJob allocates the per-task arrays for a job with n tasks and copies
// the dependency matrix so each job mutates its own rows.
func NewJob(id string, created float64, n int, dep [][]int) *Job {
	j := &Job{
		ID:          id,
		Created:     created,
		NumTasks:    n,
		RemainTasks: n,
		TaskSplits:  make([]int, n),
		TaskRemain:  make([]int, n),
		TaskStates:  make([]TaskState, n),
		TaskDep:     make([][]int, n),
	}
	for i := 0; i < n; i++ {
		j.TaskDep[i] = make([]int, n)
		if i < len(dep) {
			copy(j.TaskDep[i], dep[i])
		}
	}
	return j
}

// TaskReady reports whether every dependency of task i has been cleared.
func (j *Job) TaskReady(i int) bool {
	for _, d := range j.TaskDep[i] {
		if d == 1 {
			return false
		}
	}
	return true
}

// ClearDependency zeroes column task in every row, unblocking dependents.
func (j *Job) ClearDependency(task int) {
	for i := 0; i < j.NumTasks; i++ {
		j.TaskDep[i][task] = 0
	}
}

// ParseWorkID splits a workunit id of the form <jobid>_<task>_<split>.
// Anything with fewer than three parts indicates a trace/scheduler
// contract violation and is returned as an error.
func ParseWorkID(id string) (jobID string, taskIndex int, splitIndex int, err error) {
	parts := strings.SplitN(id, "_", 3)
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("invalid workunit id %q: want <jobid>_<task>_<split>", id)
	}
	taskIndex, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid task index in workunit id %q: %w", id, err)
	}
	splitIndex, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid split index in workunit id %q: %w", id, err)
	}
	return parts[0], taskIndex, splitIndex, nil
}

// WorkID builds the canonical workunit id for a job/task/split triple.
func WorkID(jobID string, taskIndex, splitIndex int) string {
	return fmt.Sprintf("%s_%d_%d", jobID, taskIndex, splitIndex)
}
