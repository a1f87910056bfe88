package jobs

// JobStatus is the lifecycle state of a Job. The set is closed: every value
// here is reachable through the transition table below.
type JobStatus string

const (
	JobPending          JobStatus = "PENDING"
	JobRunning          JobStatus = "RUNNING"
	JobPaused           JobStatus = "PAUSED"
	JobCompleted        JobStatus = "COMPLETED"
	JobFailed           JobStatus = "FAILED"
	JobRecoveryRequired JobStatus = "RECOVERY_REQUIRED"
	JobCancelled        JobStatus = "CANCELLED"
)

// IsTerminal reports whether no transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// jobTransitions lists every legal edge. Terminal states map to nil.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:          {JobRunning, JobCancelled},
	JobRunning:          {JobPaused, JobCompleted, JobFailed, JobCancelled, JobRecoveryRequired},
	JobPaused:           {JobRunning, JobCancelled, JobRecoveryRequired},
	JobRecoveryRequired: {JobRunning, JobCancelled},
	JobCompleted:        nil,
	JobFailed:           nil,
	JobCancelled:        nil,
}

// CanTransition reports whether from -> to is a legal job edge.
func CanTransition(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a ClipTask.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskSkipped   TaskStatus = "SKIPPED"
	TaskFailed    TaskStatus = "FAILED"
)

// IsTerminal reports whether the task has reached an outcome. FAILED is
// terminal for status computation even though an explicit retry may requeue it.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskSkipped || s == TaskFailed
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := taskTransitions[s]
	return ok
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskQueued:    {TaskRunning, TaskFailed, TaskSkipped},
	TaskRunning:   {TaskCompleted, TaskFailed, TaskSkipped},
	TaskFailed:    {TaskQueued},
	TaskCompleted: nil,
	TaskSkipped:   nil,
}

func canTransitionTask(from, to TaskStatus) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ComputeStatus derives the final job status from its tasks. done is false
// while any task is still QUEUED or RUNNING. Warnings never influence the
// result: it is COMPLETED when no task failed and FAILED otherwise.
func ComputeStatus(tasks []*Task) (status JobStatus, done bool) {
	failed := false
	for _, t := range tasks {
		s := t.Status()
		if !s.IsTerminal() {
			return "", false
		}
		if s == TaskFailed {
			failed = true
		}
	}
	if failed {
		return JobFailed, true
	}
	return JobCompleted, true
}
