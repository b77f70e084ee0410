package question

// Answer-key visibility is decided in exactly one place. Every endpoint that
// serializes questions must pass its payload through RedactForRole; handing a
// raw row to the encoder is how answer keys leak.

// CanViewAnswerKey reports whether a role may see correct answers.
// Students and coordinators never do.
func CanViewAnswerKey(role string) bool {
	return role == "admin"
}

// RedactForRole strips the correct answer from a question unless the caller's
// role is allowed to see it.
func RedactForRole(q Question, role string) Question {
	if CanViewAnswerKey(role) {
		return q
	}
	q.CorrectAnswer = ""
	return q
}

// RedactAllForRole applies RedactForRole to a copy of the slice.
func RedactAllForRole(qs []Question, role string) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = RedactForRole(q, role)
	}
	return out
}
