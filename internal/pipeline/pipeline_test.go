package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"courseforge/internal/gemini"
	"courseforge/internal/models"
	"courseforge/internal/retry"
)

var instant = retry.Policy{MaxAttempts: 3, BaseDelay: 0}

// fakeAdapter scripts per-operation behavior. failures maps an operation
// key ("section:1", "video:0", "outline") to how many times it should
// fail before succeeding; -1 means fail forever.
type fakeAdapter struct {
	failures map[string]int
	calls    map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{failures: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeAdapter) attempt(key string) error {
	f.calls[key]++
	left, ok := f.failures[key]
	if !ok {
		return nil
	}
	if left == -1 {
		return &gemini.TransientError{Op: key, Err: errors.New("scripted failure")}
	}
	if left > 0 {
		f.failures[key] = left - 1
		return &gemini.TransientError{Op: key, Err: errors.New("scripted failure")}
	}
	return nil
}

func (f *fakeAdapter) GenerateOutline(ctx context.Context, p gemini.OutlineParams) ([]string, error) {
	if err := f.attempt("outline"); err != nil {
		return nil, err
	}
	titles := make([]string, p.Count)
	for i := range titles {
		titles[i] = fmt.Sprintf("Generated %d", i+1)
	}
	return titles, nil
}

func (f *fakeAdapter) GenerateSectionText(ctx context.Context, p gemini.SectionTextParams) (string, error) {
	if err := f.attempt("section:" + p.SectionTitle); err != nil {
		return "", err
	}
	return "lecture for " + p.SectionTitle, nil
}

func (f *fakeAdapter) GenerateVideo(ctx context.Context, p gemini.VideoParams) (string, error) {
	if err := f.attempt("video:" + p.SectionTitle); err != nil {
		return "", err
	}
	return "https://www.youtube.com/watch?v=dQw4w9WgXcQ", nil
}

func (f *fakeAdapter) GenerateQuestions(ctx context.Context, p gemini.QuestionParams) ([]models.Question, error) {
	if err := f.attempt("quiz:" + p.SectionTitle); err != nil {
		return nil, err
	}
	return []models.Question{{
		QuestionText: "Q about " + p.SectionTitle,
		Options:      []string{"是", "否"},
		Answer:       "是",
	}}, nil
}

func (f *fakeAdapter) GenerateDiscussionPrompt(ctx context.Context, p gemini.DiscussionParams) (string, error) {
	if err := f.attempt("discussion:" + p.SectionTitle); err != nil {
		return "", err
	}
	return "discuss " + p.SectionTitle, nil
}

func baseConfig() Config {
	return Config{
		Topic:               "Python 入門",
		SectionCount:        3,
		StageOrder:          []models.Stage{models.StageLecture, models.StageQuiz},
		QuestionTypes:       []string{models.QuestionTypeTrueFalse},
		QuestionsPerSection: 1,
	}
}

func TestStartFullRun(t *testing.T) {
	adapter := newFakeAdapter()
	runner := NewRunner(adapter, WithPolicy(instant))

	run, err := runner.Start(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !run.Done {
		t.Error("run should be done")
	}
	if run.TotalSteps != 6 {
		t.Errorf("TotalSteps = %d, want 6 (3 sections x 2 stages)", run.TotalSteps)
	}
	if run.CompletedSteps != run.TotalSteps {
		t.Errorf("CompletedSteps = %d, want %d", run.CompletedSteps, run.TotalSteps)
	}
	if len(run.Sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(run.Sections))
	}
	for i, sec := range run.Sections {
		if sec.Content == "" {
			t.Errorf("section %d has no content", i)
		}
		if len(sec.Questions) != 1 {
			t.Errorf("section %d has %d questions, want 1", i, len(sec.Questions))
		}
		if sec.Error != nil {
			t.Errorf("section %d has unexpected error: %v", i, sec.Error)
		}
	}
}

func TestProgressIsMonotonicAndConsumedOnFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failures["section:Generated 2"] = -1 // lecture of section 1 never succeeds

	var progress []int
	runner := NewRunner(adapter, WithPolicy(instant), WithObserver(func(run Run) {
		progress = append(progress, run.CompletedSteps)
	}))

	run, err := runner.Start(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if run.CompletedSteps != run.TotalSteps {
		t.Errorf("CompletedSteps = %d, want %d even with failures", run.CompletedSteps, run.TotalSteps)
	}
}

func TestStageFailureStaysInSection(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failures["section:Generated 2"] = -1

	runner := NewRunner(adapter, WithPolicy(instant))
	run, err := runner.Start(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if run.Sections[0].Error != nil || run.Sections[2].Error != nil {
		t.Error("failure leaked into a healthy section")
	}
	if run.Sections[0].Content == "" || run.Sections[2].Content == "" {
		t.Error("healthy sections should still have content")
	}
	if run.Sections[1].Error == nil {
		t.Fatal("section 1 should carry an error")
	}
}

func TestDependentStageSkippedWithoutLecture(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failures["section:Generated 1"] = -1

	runner := NewRunner(adapter, WithPolicy(instant))
	run, err := runner.Start(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sec := run.Sections[0]
	if sec.Error == nil {
		t.Fatal("section 0 should carry an error")
	}
	if sec.Error.Message != PrerequisiteMessage {
		t.Errorf("final error = %q, want %q from the skipped quiz stage", sec.Error.Message, PrerequisiteMessage)
	}
	if adapter.calls["quiz:Generated 1"] != 0 {
		t.Errorf("quiz stage was called %d times, want 0 (prerequisite missing)", adapter.calls["quiz:Generated 1"])
	}
}

func TestCustomTitlesMergeInOrder(t *testing.T) {
	adapter := newFakeAdapter()
	runner := NewRunner(adapter, WithPolicy(instant))

	cfg := baseConfig()
	cfg.CustomTitles = []string{"Intro", "", "Wrap-up"}

	run, err := runner.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	titles := []string{run.Sections[0].Title, run.Sections[1].Title, run.Sections[2].Title}
	if titles[0] != "Intro" || titles[2] != "Wrap-up" {
		t.Errorf("custom titles not preserved in place: %v", titles)
	}
	if titles[1] == "" || titles[1] == "Intro" || titles[1] == "Wrap-up" {
		t.Errorf("gap was not filled with a generated title: %v", titles)
	}
	if adapter.calls["outline"] != 1 {
		t.Errorf("outline called %d times, want 1", adapter.calls["outline"])
	}
}

func TestAllCustomTitlesSkipsOutlineCall(t *testing.T) {
	adapter := newFakeAdapter()
	runner := NewRunner(adapter, WithPolicy(instant))

	cfg := baseConfig()
	cfg.CustomTitles = []string{"One", "Two", "Three"}

	run, err := runner.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if adapter.calls["outline"] != 0 {
		t.Errorf("outline called %d times, want 0 when every title is supplied", adapter.calls["outline"])
	}
	if run.Sections[1].Title != "Two" {
		t.Errorf("Sections[1].Title = %q, want %q", run.Sections[1].Title, "Two")
	}
}

func TestStartValidatesBeforeCallingAdapter(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty topic", func(c *Config) { c.Topic = "   " }},
		{"unknown stage", func(c *Config) { c.StageOrder = []models.Stage{"karaoke"} }},
		{"duplicate stage", func(c *Config) { c.StageOrder = []models.Stage{models.StageLecture, models.StageLecture} }},
		{"quiz without question types", func(c *Config) { c.QuestionTypes = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newFakeAdapter()
			runner := NewRunner(adapter, WithPolicy(instant))
			cfg := baseConfig()
			tt.mutate(&cfg)

			_, err := runner.Start(context.Background(), cfg)
			var verr *gemini.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if len(adapter.calls) != 0 {
				t.Errorf("adapter was called despite invalid config: %v", adapter.calls)
			}
		})
	}
}

func TestSectionCountClamped(t *testing.T) {
	adapter := newFakeAdapter()
	runner := NewRunner(adapter, WithPolicy(instant))

	cfg := baseConfig()
	cfg.SectionCount = 99

	run, err := runner.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(run.Sections) != MaxSections {
		t.Errorf("got %d sections, want clamp to %d", len(run.Sections), MaxSections)
	}
}

func TestOutlineFailureEndsRun(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failures["outline"] = -1

	runner := NewRunner(adapter, WithPolicy(instant))
	run, err := runner.Start(context.Background(), baseConfig())
	if err == nil {
		t.Fatal("expected error when the outline never succeeds")
	}
	if run.OutlineError == "" {
		t.Error("OutlineError should record the failure")
	}
	if len(run.Sections) != 0 {
		t.Errorf("got %d sections, want 0 after outline failure", len(run.Sections))
	}
	if adapter.calls["outline"] != instant.MaxAttempts {
		t.Errorf("outline called %d times, want %d", adapter.calls["outline"], instant.MaxAttempts)
	}
	// a later run works again
	adapter.failures = map[string]int{}
	if _, err := runner.Start(context.Background(), baseConfig()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
}

func TestRetryStage(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failures["section:Generated 2"] = -1

	runner := NewRunner(adapter, WithPolicy(instant))
	if _, err := runner.Start(context.Background(), baseConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// the lecture now succeeds on retry
	adapter.failures = map[string]int{}
	if err := runner.RetryStage(context.Background(), 1, models.StageLecture); err != nil {
		t.Fatalf("RetryStage(lecture) error = %v", err)
	}

	run, _ := runner.Snapshot()
	if run.Sections[1].Content == "" {
		t.Error("retried lecture left no content")
	}
	if run.Sections[1].Error != nil {
		t.Errorf("error should be cleared, got %v", run.Sections[1].Error)
	}

	// progress counters are untouched by single-stage retries
	if run.CompletedSteps != run.TotalSteps {
		t.Errorf("CompletedSteps = %d, want %d", run.CompletedSteps, run.TotalSteps)
	}

	// the quiz was skipped during the run; its output is still missing
	if err := runner.RetryStage(context.Background(), 1, models.StageQuiz); err != nil {
		t.Fatalf("RetryStage(quiz) error = %v", err)
	}
	run, _ = runner.Snapshot()
	if len(run.Sections[1].Questions) != 1 {
		t.Errorf("retried quiz produced %d questions, want 1", len(run.Sections[1].Questions))
	}
}

func TestRetryStageGuards(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failures["section:Generated 1"] = -1
	runner := NewRunner(adapter, WithPolicy(instant))
	if _, err := runner.Start(context.Background(), baseConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := runner.RetryStage(context.Background(), 5, models.StageLecture); err == nil {
		t.Error("expected error for out-of-range section index")
	}

	// section 1 completed cleanly: nothing to retry
	if err := runner.RetryStage(context.Background(), 1, models.StageLecture); err == nil {
		t.Error("expected error when retrying a healthy stage")
	}

	// the quiz of section 0 cannot be retried while its lecture is missing
	err := runner.RetryStage(context.Background(), 0, models.StageQuiz)
	var perr *PrerequisiteError
	if !errors.As(err, &perr) {
		t.Errorf("error = %v, want PrerequisiteError", err)
	}
	if adapter.calls["quiz:Generated 1"] != 0 {
		t.Errorf("quiz was called %d times, want 0", adapter.calls["quiz:Generated 1"])
	}
	if err != nil && !strings.Contains(err.Error(), "prerequisite") {
		t.Errorf("error message %q should mention the prerequisite", err.Error())
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	adapter := newFakeAdapter()
	runner := NewRunner(adapter, WithPolicy(instant))
	if _, err := runner.Start(context.Background(), baseConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap, ok := runner.Snapshot()
	if !ok {
		t.Fatal("expected a run")
	}
	snap.Sections[0].Title = "mutated"
	snap.Sections[0].Questions[0].Options[0] = "mutated"

	again, _ := runner.Snapshot()
	if again.Sections[0].Title == "mutated" {
		t.Error("snapshot aliases the live section list")
	}
	if again.Sections[0].Questions[0].Options[0] == "mutated" {
		t.Error("snapshot aliases question options")
	}
}

func TestRestoreThenRetry(t *testing.T) {
	adapter := newFakeAdapter()
	runner := NewRunner(adapter, WithPolicy(instant))

	imported := Run{
		Config: baseConfig(),
		Sections: []models.Section{
			{Title: "Ch 1", Content: "text", Questions: []models.Question{{QuestionText: "q", Options: []string{"a", "b"}, Answer: "a"}}},
			{Title: "Ch 2", Error: &models.SectionError{Stage: models.StageLecture, Message: "boom"}},
		},
		CompletedSteps: 4,
		TotalSteps:     4,
		Done:           true,
	}
	if err := runner.Restore(imported); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if err := runner.RetryStage(context.Background(), 1, models.StageLecture); err != nil {
		t.Fatalf("RetryStage() error = %v", err)
	}
	run, _ := runner.Snapshot()
	if run.Sections[1].Content == "" {
		t.Error("restored run should accept a single-stage retry")
	}
	if run.Sections[0].Content != "text" {
		t.Error("untouched section changed during retry")
	}
}
