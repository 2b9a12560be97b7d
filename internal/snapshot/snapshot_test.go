package snapshot

import (
	"strings"
	"testing"
	"time"

	"courseforge/internal/exercise"
	"courseforge/internal/models"
	"courseforge/internal/pipeline"

	"github.com/google/uuid"
)

func sampleRun() pipeline.Run {
	return pipeline.Run{
		ID: uuid.New(),
		Config: pipeline.Config{
			Topic:               "Python 入門",
			SectionCount:        2,
			StageOrder:          []models.Stage{models.StageLecture, models.StageQuiz, models.StageDiscussion},
			QuestionTypes:       []string{models.QuestionTypeTrueFalse},
			QuestionsPerSection: 1,
		},
		Sections: []models.Section{
			{
				Title:   "變數與型別",
				Content: "lecture text",
				Questions: []models.Question{
					{QuestionText: "Python 是直譯語言嗎？", Options: []string{"是", "否"}, Answer: "是"},
				},
				DiscussionPrompt: "描述你如何使用變數。",
			},
			{
				Title: "迴圈",
				Error: &models.SectionError{Stage: models.StageLecture, Message: "generate-section failed after 3 attempts: model overloaded"},
			},
		},
		CompletedSteps: 6,
		TotalSteps:     6,
		Done:           true,
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	run := sampleRun()

	history := exercise.NewHistory()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	history.Record("Python 是直譯語言嗎？", "否", false, ts)
	history.Record("Python 是直譯語言嗎？", "是", true, ts.Add(time.Minute))

	answers := map[int]string{0: "我會用變數儲存使用者輸入。"}
	feedback := map[int]string{0: "Good start; mention naming."}

	data, err := Export(run, history, answers, feedback)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	snap, err := Import(data)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if snap.Version != Version {
		t.Errorf("Version = %d, want %d", snap.Version, Version)
	}
	if snap.Run.ID != run.ID {
		t.Errorf("Run.ID = %s, want %s", snap.Run.ID, run.ID)
	}
	if len(snap.Run.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(snap.Run.Sections))
	}
	if snap.Run.Sections[0].Questions[0].Answer != "是" {
		t.Errorf("question answer lost in round trip: %+v", snap.Run.Sections[0].Questions[0])
	}

	// the failed stage survives, so the importer can offer a retry
	sec := snap.Run.Sections[1]
	if sec.Error == nil || sec.Error.Stage != models.StageLecture {
		t.Errorf("section error lost in round trip: %+v", sec.Error)
	}
	if !strings.Contains(sec.Error.Message, "failed after 3 attempts") {
		t.Errorf("error message lost: %q", sec.Error.Message)
	}

	restored := snap.History()
	entries := restored.Entries()
	if len(entries) != 1 || len(entries[0].Answers) != 2 {
		t.Fatalf("history lost in round trip: %+v", entries)
	}
	if entries[0].Answers[0].Correct || !entries[0].Answers[1].Correct {
		t.Errorf("attempt outcomes lost: %+v", entries[0].Answers)
	}
	if !entries[0].Answers[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", entries[0].Answers[0].Timestamp, ts)
	}

	if snap.DiscussionAnswers[0] != answers[0] {
		t.Errorf("discussion answer lost: %q", snap.DiscussionAnswers[0])
	}
	if snap.DiscussionFeedback[0] != feedback[0] {
		t.Errorf("discussion feedback lost: %q", snap.DiscussionFeedback[0])
	}
}

func TestImportRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "definitely not json"},
		{"wrong version", `{"version": 99, "run": {}}`},
		{"steps exceed total", `{"version": 1, "run": {"completed_steps": 7, "total_steps": 6}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Import([]byte(tt.data)); err == nil {
				t.Errorf("Import(%q) should fail", tt.data)
			}
		})
	}
}

func TestExportWithoutHistory(t *testing.T) {
	data, err := Export(sampleRun(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	snap, err := Import(data)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(snap.QuizHistory) != 0 {
		t.Errorf("QuizHistory = %v, want empty", snap.QuizHistory)
	}
}
