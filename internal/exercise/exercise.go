// Package exercise tracks a learner's progress through one section's quiz:
// which question is current, what is selected, whether the submission was
// right, and hint visibility. It reads the question list and never writes
// it back.
package exercise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courseforge/internal/gemini"
	"courseforge/internal/models"
	"courseforge/internal/retry"
)

// ErrUnanswerable flags a data-quality defect: the question's answer does
// not resolve to any of its options, so no submission can ever be correct.
var ErrUnanswerable = errors.New("question answer does not match any option")

// ErrLocked is returned when the caller tries to change a question that
// was already answered correctly.
var ErrLocked = errors.New("question already answered correctly")

// ErrNotCorrect is returned by Advance before the current question has a
// correct submission.
var ErrNotCorrect = errors.New("cannot advance before a correct submission")

// HintSource produces a hint for a question without an embedded one;
// *gemini.Client satisfies it.
type HintSource interface {
	GenerateHint(ctx context.Context, p gemini.HintParams) (string, error)
}

// State is the transient per-section exercise state. WrongAnswer keeps the
// last incorrect submission so the UI can mark the wrong choice; it is
// empty when nothing wrong was submitted for the current question.
type State struct {
	CurrentQuestion int    `json:"current_question"`
	Selected        string `json:"selected,omitempty"`
	Correct         bool   `json:"correct"`
	WrongAnswer     string `json:"wrong_answer,omitempty"`
	HintVisible     bool   `json:"hint_visible"`
	HintText        string `json:"hint_text,omitempty"`
}

// Machine runs the per-question state transitions for one section.
type Machine struct {
	section   int
	questions []models.Question
	content   string

	hints   HintSource
	policy  retry.Policy
	history *History

	state     State
	hintCache map[int]string
}

// NewMachine creates a machine over a finished section's questions.
// history may be shared across sections; hints may be nil when hint
// generation is unavailable (embedded hints still work).
func NewMachine(section int, questions []models.Question, content string, hints HintSource, history *History) *Machine {
	return &Machine{
		section:   section,
		questions: questions,
		content:   content,
		hints:     hints,
		policy:    retry.Default,
		history:   history,
		hintCache: make(map[int]string),
	}
}

// SetPolicy overrides the retry policy used for hint generation.
func (m *Machine) SetPolicy(p retry.Policy) { m.policy = p }

// State returns a copy of the current state.
func (m *Machine) State() State { return m.state }

// Completed reports whether every question has been answered correctly and
// advanced past.
func (m *Machine) Completed() bool { return m.state.CurrentQuestion >= len(m.questions) }

// Current returns the question under test.
func (m *Machine) Current() (models.Question, bool) {
	if m.Completed() {
		return models.Question{}, false
	}
	return m.questions[m.state.CurrentQuestion], true
}

// Select records the learner's choice. Selecting never evaluates
// correctness; it is rejected once the question is correctly answered.
func (m *Machine) Select(option string) error {
	if m.Completed() {
		return ErrLocked
	}
	if m.state.Correct {
		return ErrLocked
	}
	m.state.Selected = option
	return nil
}

// Submit evaluates the current selection against the answer, appends the
// outcome to the history, and locks the question when correct. A wrong
// submission keeps the selection visible so the UI can mark it; other
// options stay selectable.
func (m *Machine) Submit(now time.Time) (bool, error) {
	q, ok := m.Current()
	if !ok {
		return false, ErrLocked
	}
	if m.state.Correct {
		return false, ErrLocked
	}
	if m.state.Selected == "" {
		return false, errors.New("no option selected")
	}

	if _, ok := resolveAnswer(q); !ok {
		return false, fmt.Errorf("question %q: answer %q not found in options: %w",
			q.QuestionText, q.Answer, ErrUnanswerable)
	}

	correct := evaluate(m.state.Selected, q)
	if m.history != nil {
		m.history.Record(q.QuestionText, m.state.Selected, correct, now)
	}

	if correct {
		m.state.Correct = true
		m.state.WrongAnswer = ""
	} else {
		m.state.WrongAnswer = m.state.Selected
	}
	return correct, nil
}

// RequestHint shows the hint for the current question, generating one on
// first request when the question has none embedded. The generated hint is
// cached per question; once visible it stays visible until Advance.
func (m *Machine) RequestHint(ctx context.Context) (string, error) {
	q, ok := m.Current()
	if !ok {
		return "", ErrLocked
	}

	idx := m.state.CurrentQuestion
	hint := q.Hint
	if hint == "" {
		if cached, ok := m.hintCache[idx]; ok {
			hint = cached
		} else {
			if m.hints == nil {
				return "", errors.New("no hint available for this question")
			}
			generated, err := retry.Do(ctx, m.policy, "generate-hint", func(ctx context.Context) (string, error) {
				return m.hints.GenerateHint(ctx, gemini.HintParams{
					Question:       q.QuestionText,
					SectionContent: m.content,
				})
			})
			if err != nil {
				return "", err
			}
			m.hintCache[idx] = generated
			hint = generated
		}
	}

	m.state.HintVisible = true
	m.state.HintText = hint
	return hint, nil
}

// Advance moves to the next question. Only a correct submission unlocks
// it; advancing resets selection, submission state and hint visibility.
func (m *Machine) Advance() error {
	if m.Completed() {
		return ErrLocked
	}
	if !m.state.Correct {
		return ErrNotCorrect
	}
	m.state = State{CurrentQuestion: m.state.CurrentQuestion + 1}
	return nil
}

// True/false synonym sets. A two-option question whose options both fall
// in these sets is judged by truth value, not by exact string match.
var (
	trueSynonyms  = map[string]bool{"是": true, "True": true, "true": true, "對": true}
	falseSynonyms = map[string]bool{"否": true, "False": true, "false": true, "錯": true}
)

func truthValue(s string) (value bool, ok bool) {
	s = strings.TrimSpace(s)
	if trueSynonyms[s] {
		return true, true
	}
	if falseSynonyms[s] {
		return false, true
	}
	return false, false
}

// isTrueFalse reports whether the option set is exactly a true/false pair.
func isTrueFalse(options []string) bool {
	if len(options) != 2 {
		return false
	}
	a, aok := truthValue(options[0])
	b, bok := truthValue(options[1])
	return aok && bok && a != b
}

// resolveAnswer maps the question's answer onto one of its options,
// applying the synonym rule for true/false pairs. ok is false for an
// unanswerable question.
func resolveAnswer(q models.Question) (string, bool) {
	if isTrueFalse(q.Options) {
		want, ok := truthValue(q.Answer)
		if !ok {
			return "", false
		}
		for _, opt := range q.Options {
			if v, _ := truthValue(opt); v == want {
				return opt, true
			}
		}
		return "", false
	}

	for _, opt := range q.Options {
		if opt == q.Answer {
			return opt, true
		}
	}
	return "", false
}

// evaluate judges a selected option against the question's answer.
func evaluate(selected string, q models.Question) bool {
	resolved, ok := resolveAnswer(q)
	if !ok {
		return false
	}
	if isTrueFalse(q.Options) {
		sv, sok := truthValue(selected)
		rv, _ := truthValue(resolved)
		return sok && sv == rv
	}
	return selected == resolved
}
