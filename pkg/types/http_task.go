package types

// AcquireTaskRequest asks for the next unclaimed task. WaitMs bounds the
// long-poll; zero means the server default.
type AcquireTaskRequest struct {
	UID     uint64 `json:"uid" binding:"required"`
	FIDHint uint64 `json:"fid_hint,omitempty"`
	WaitMs  uint64 `json:"wait_ms,omitempty"`
}

// AcquireTaskResponse carries the leased task, or Found=false as the empty
// sentinel when the deadline elapsed with nothing to hand out.
type AcquireTaskResponse struct {
	Found bool            `json:"found"`
	Task  *TaskAssignment `json:"task,omitempty"`
}

// AckTaskRequest reports the outcome of a leased task.
type AckTaskRequest struct {
	UID     uint64      `json:"uid" binding:"required"`
	Outcome TaskOutcome `json:"outcome" binding:"required"`
	Error   string      `json:"error,omitempty"`
	Output  string      `json:"output,omitempty"`
}

// AcquireFuncResponse is the versioned code for a function id, plus the
// limits the sandbox must enforce. Workers cache by version and only
// re-fetch on a version bump observed in a task.
type AcquireFuncResponse struct {
	FID         uint64         `json:"fid"`
	Version     uint64         `json:"version"`
	Code        string         `json:"code"`
	Resources   ResourceLimits `json:"resources"`
	Permissions Permissions    `json:"permissions"`
}
