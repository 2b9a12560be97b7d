// Package snapshot serializes a whole run — pipeline state, quiz history,
// discussion answers — into one JSON document that fully reconstructs the
// UI state without re-invoking any generation stage.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"courseforge/internal/exercise"
	"courseforge/internal/pipeline"
)

// Version guards the document layout for future migrations.
const Version = 1

// Snapshot is the exported document.
type Snapshot struct {
	Version            int              `json:"version"`
	ExportedAt         time.Time        `json:"exported_at"`
	Run                pipeline.Run     `json:"run"`
	QuizHistory        []exercise.Entry `json:"quiz_history,omitempty"`
	DiscussionAnswers  map[int]string   `json:"discussion_answers,omitempty"`
	DiscussionFeedback map[int]string   `json:"discussion_feedback,omitempty"`
}

// Export serializes the run and its companion state.
func Export(run pipeline.Run, history *exercise.History, answers, feedback map[int]string) ([]byte, error) {
	snap := Snapshot{
		Version:            Version,
		ExportedAt:         time.Now().UTC(),
		Run:                run,
		DiscussionAnswers:  answers,
		DiscussionFeedback: feedback,
	}
	if history != nil {
		snap.QuizHistory = history.Entries()
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Import parses an exported document and checks it is internally
// consistent enough to resume from.
func Import(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Run.TotalSteps > 0 && snap.Run.CompletedSteps > snap.Run.TotalSteps {
		return nil, fmt.Errorf("corrupt snapshot: %d completed steps exceed total %d",
			snap.Run.CompletedSteps, snap.Run.TotalSteps)
	}
	return &snap, nil
}

// History rebuilds an exercise history from the snapshot's log.
func (s *Snapshot) History() *exercise.History {
	h := exercise.NewHistory()
	h.Restore(s.QuizHistory)
	return h
}
