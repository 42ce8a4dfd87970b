package domain

// TaskStatus represents the lifecycle state of a task. Each status maps to
// exactly one queue in the task store.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusDeadLetter TaskStatus = "dead_letter"
)

// Queues lists every task queue in dequeue-priority order.
var Queues = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusDeadLetter}

// ValidTransitions maps each status to the statuses it may move to.
var ValidTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending, StatusDeadLetter},
}

// CanTransition returns true if a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, t := range ValidTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Priority represents task priority
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Phase is one step of the Reason-Act-Reflect-Verify cycle.
type Phase string

const (
	PhaseReason  Phase = "reason"
	PhaseAct     Phase = "act"
	PhaseReflect Phase = "reflect"
	PhaseVerify  Phase = "verify"
)

// Tier is the capability level requested from the agent executor for a phase.
type Tier string

const (
	TierPlanning    Tier = "planning"
	TierDevelopment Tier = "development"
	TierFast        Tier = "fast"
)

// PhaseForIteration maps an iteration number onto the repeating RARV cycle.
func PhaseForIteration(iteration int) Phase {
	switch iteration % 4 {
	case 0:
		return PhaseReason
	case 1:
		return PhaseAct
	case 2:
		return PhaseReflect
	default:
		return PhaseVerify
	}
}

// TierForPhase selects the executor capability tier for a phase.
func TierForPhase(p Phase) Tier {
	switch p {
	case PhaseReason:
		return TierPlanning
	case PhaseVerify:
		return TierFast
	default:
		return TierDevelopment
	}
}
