package exam

// Status is the attempt lifecycle state. Transitions are monotonic:
//
//	pending -> in_progress -> completed -> evaluated -> published
//
// with abandoned reachable from pending and in_progress only. All status
// writes go through CanTransition so an illegal move is rejected in one
// place instead of being re-guarded per endpoint.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusEvaluated  Status = "evaluated"
	StatusPublished  Status = "published"
	StatusAbandoned  Status = "abandoned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusEvaluated, StatusPublished, StatusAbandoned:
		return true
	}
	return false
}

// Editable reports whether answers may still be written.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusInProgress
}

// Final reports whether the total score is authoritative.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusEvaluated || s == StatusPublished
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusAbandoned},
	StatusInProgress: {StatusCompleted, StatusAbandoned},
	StatusCompleted:  {StatusEvaluated},
	StatusEvaluated:  {StatusPublished},
	StatusPublished:  {},
	StatusAbandoned:  {},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
