package exercise

import "time"

// Attempt is one submission against a question.
type Attempt struct {
	UserAnswer string    `json:"userAnswer"`
	Correct    bool      `json:"correct"`
	Timestamp  time.Time `json:"timestamp"`
}

// Entry is the append-only attempt log for one question, keyed by its
// text. Prior attempts are never overwritten.
type Entry struct {
	Question string    `json:"question"`
	Answers  []Attempt `json:"answers"`
}

// History accumulates quiz attempts across a whole run. It marshals as a
// plain entry list so it round-trips through snapshots.
type History struct {
	entries []Entry
	index   map[string]int
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{index: make(map[string]int)}
}

// Record appends one attempt under the question's entry, creating the
// entry on first sight.
func (h *History) Record(question, userAnswer string, correct bool, ts time.Time) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	i, ok := h.index[question]
	if !ok {
		i = len(h.entries)
		h.entries = append(h.entries, Entry{Question: question})
		h.index[question] = i
	}
	h.entries[i].Answers = append(h.entries[i].Answers, Attempt{
		UserAnswer: userAnswer,
		Correct:    correct,
		Timestamp:  ts,
	})
}

// Entries returns the log in first-seen order.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	for i, e := range h.entries {
		copied := e
		copied.Answers = append([]Attempt(nil), e.Answers...)
		out[i] = copied
	}
	return out
}

// Restore replaces the history with previously exported entries.
func (h *History) Restore(entries []Entry) {
	h.entries = make([]Entry, len(entries))
	h.index = make(map[string]int, len(entries))
	for i, e := range entries {
		copied := e
		copied.Answers = append([]Attempt(nil), e.Answers...)
		h.entries[i] = copied
		h.index[e.Question] = i
	}
}
