package exam

import (
	"math/rand"

	"examserve/internal/question"
)

// ShuffleForAttempt returns a Fisher-Yates permutation of the question list
// seeded by the attempt id, so a reload mid-attempt presents the same order.
// The permutation is derived, never persisted.
func ShuffleForAttempt(qs []question.Question, attemptID int64) []question.Question {
	out := make([]question.Question, len(qs))
	copy(out, qs)
	r := rand.New(rand.NewSource(attemptID))
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
