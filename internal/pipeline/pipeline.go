// Package pipeline drives a course-generation run: one outline call, then
// every configured stage for every section, section by section. Stage
// failures stay inside the owning section; the run itself always finishes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"courseforge/internal/gemini"
	"courseforge/internal/models"
	"courseforge/internal/retry"

	"github.com/google/uuid"
)

// StageOutline is the CurrentStage value while the outline call is in
// flight; it is not a section stage.
const StageOutline = "outline"

// PrerequisiteMessage is the synthetic error recorded for a stage skipped
// because an earlier stage produced no content.
const PrerequisiteMessage = "skipped: prerequisite stage content missing"

// ErrRunInFlight is returned when Start or RetryStage is called while a
// run is already generating.
var ErrRunInFlight = errors.New("a generation run is already in flight")

// PrerequisiteError marks a dependent stage that was skipped locally; it
// never reaches the backend and is never retried automatically.
type PrerequisiteError struct {
	Stage models.Stage
}

func (e *PrerequisiteError) Error() string { return PrerequisiteMessage }

// Run is the full observable state of one generation run. TotalSteps
// counts section stages only; the outline call is excluded from the
// progress counter by convention.
type Run struct {
	ID             uuid.UUID        `json:"id"`
	Config         Config           `json:"config"`
	Sections       []models.Section `json:"sections"`
	CompletedSteps int              `json:"completed_steps"`
	TotalSteps     int              `json:"total_steps"`
	CurrentStage   string           `json:"current_stage,omitempty"`
	OutlineError   string           `json:"outline_error,omitempty"`
	Done           bool             `json:"done"`
}

// Adapter is the boundary to the generation backend; *gemini.Client
// satisfies it, tests substitute fakes.
type Adapter interface {
	GenerateOutline(ctx context.Context, p gemini.OutlineParams) ([]string, error)
	GenerateSectionText(ctx context.Context, p gemini.SectionTextParams) (string, error)
	GenerateVideo(ctx context.Context, p gemini.VideoParams) (string, error)
	GenerateQuestions(ctx context.Context, p gemini.QuestionParams) ([]models.Question, error)
	GenerateDiscussionPrompt(ctx context.Context, p gemini.DiscussionParams) (string, error)
}

// Runner owns one run at a time. All stage calls are sequential: one
// outstanding backend call, state mutations applied one by one, so no two
// completions ever race on the sections list.
type Runner struct {
	adapter  Adapter
	policy   retry.Policy
	onUpdate func(Run)

	mu         sync.Mutex
	generating bool
	run        *Run
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy overrides the default retry policy (used by tests to drop the
// backoff delay).
func WithPolicy(p retry.Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithObserver registers a callback fired with a copy of the run after
// every state mutation. The presentation layer renders from these copies.
func WithObserver(fn func(Run)) Option {
	return func(r *Runner) { r.onUpdate = fn }
}

// NewRunner creates a Runner around the given adapter.
func NewRunner(adapter Adapter, opts ...Option) *Runner {
	r := &Runner{adapter: adapter, policy: retry.Default}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns a copy of the current run, if any.
func (r *Runner) Snapshot() (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return Run{}, false
	}
	return cloneRun(r.run), true
}

// Generating reports whether a run is in flight.
func (r *Runner) Generating() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generating
}

// Restore installs an imported run so single-stage retries can resume it
// without re-invoking any generation stage.
func (r *Runner) Restore(run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generating {
		return ErrRunInFlight
	}
	restored := cloneRun(&run)
	r.run = &restored
	return nil
}

// mutate applies fn to the run under the lock, then notifies the observer
// with a copy taken inside the same critical section.
func (r *Runner) mutate(fn func(run *Run)) {
	r.mu.Lock()
	fn(r.run)
	var copied Run
	if r.run != nil {
		copied = cloneRun(r.run)
	}
	r.mu.Unlock()
	if r.onUpdate != nil && r.run != nil {
		r.onUpdate(copied)
	}
}

// Start validates cfg and executes a full run: outline, then every
// configured stage of section 0, then section 1, and so on. An outline
// failure ends the run with no sections; stage failures are recorded on
// the owning section and the run continues. The returned Run is a copy of
// the terminal state.
func (r *Runner) Start(ctx context.Context, cfg Config) (Run, error) {
	if err := cfg.normalize(); err != nil {
		return Run{}, err
	}

	r.mu.Lock()
	if r.generating {
		r.mu.Unlock()
		return Run{}, ErrRunInFlight
	}
	r.generating = true
	r.run = &Run{
		ID:           uuid.New(),
		Config:       cfg,
		CurrentStage: StageOutline,
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.generating = false
		r.mu.Unlock()
	}()

	r.mutate(func(run *Run) {}) // announce the new run

	titles, err := r.buildOutline(ctx, cfg)
	if err != nil {
		log.Printf("ERROR: outline generation failed for topic %q: %v", cfg.Topic, err)
		r.mutate(func(run *Run) {
			run.OutlineError = err.Error()
			run.CurrentStage = ""
		})
		snap, _ := r.Snapshot()
		return snap, fmt.Errorf("generate outline: %w", err)
	}

	r.mutate(func(run *Run) {
		run.Sections = make([]models.Section, len(titles))
		for i, title := range titles {
			run.Sections[i] = models.Section{Title: title}
		}
		run.TotalSteps = len(titles) * len(cfg.StageOrder)
	})

	for i := range titles {
		for _, stage := range cfg.StageOrder {
			r.runStage(ctx, i, stage)
		}
	}

	r.mutate(func(run *Run) {
		run.CurrentStage = ""
		run.Done = true
	})

	snap, _ := r.Snapshot()
	log.Printf("INFO: run complete for topic %q: %d sections, %d/%d steps",
		cfg.Topic, len(snap.Sections), snap.CompletedSteps, snap.TotalSteps)
	return snap, nil
}

// buildOutline produces the final list of section titles for the run.
func (r *Runner) buildOutline(ctx context.Context, cfg Config) ([]string, error) {
	return BuildOutline(ctx, r.adapter, r.policy, cfg)
}

// BuildOutline produces the final list of section titles. User-supplied
// titles are kept verbatim in their positions; only the empty slots are
// sent for generation and the results spliced back in order.
func BuildOutline(ctx context.Context, adapter Adapter, pol retry.Policy, cfg Config) ([]string, error) {
	titles := make([]string, cfg.SectionCount)
	for i := 0; i < len(cfg.CustomTitles) && i < cfg.SectionCount; i++ {
		titles[i] = strings.TrimSpace(cfg.CustomTitles[i])
	}

	var gaps []int
	for i, t := range titles {
		if t == "" {
			gaps = append(gaps, i)
		}
	}
	if len(gaps) == 0 {
		return titles, nil
	}

	var known []string
	for _, t := range titles {
		if t != "" {
			known = append(known, t)
		}
	}

	generated, err := retry.Do(ctx, pol, "generate-outline", func(ctx context.Context) ([]string, error) {
		return adapter.GenerateOutline(ctx, gemini.OutlineParams{
			Topic:        cfg.Topic,
			Count:        len(gaps),
			AudienceTags: cfg.AudienceTags,
			KnownTitles:  known,
		})
	})
	if err != nil {
		return nil, err
	}

	for j, idx := range gaps {
		titles[idx] = generated[j]
	}
	return titles, nil
}

// runStage executes one (section, stage) step. Success writes the result
// and clears the section's error; failure records it. Either way the step
// is consumed: CompletedSteps advances so progress always reaches
// TotalSteps.
func (r *Runner) runStage(ctx context.Context, i int, stage models.Stage) {
	r.mutate(func(run *Run) {
		run.CurrentStage = string(stage)
	})

	err := r.executeStage(ctx, i, stage)

	r.mutate(func(run *Run) {
		sec := &run.Sections[i]
		if err != nil {
			sec.Error = &models.SectionError{Stage: stage, Message: err.Error()}
		}
		run.CompletedSteps++
	})

	if err != nil {
		log.Printf("WARN: section %d stage %s failed: %v", i, stage, err)
	}
}

// executeStage performs the backend call for one stage and writes the
// result under the lock. Dependent stages (video, quiz) are skipped
// locally when the section has no lecture text, without consuming any
// network retries.
func (r *Runner) executeStage(ctx context.Context, i int, stage models.Stage) error {
	r.mu.Lock()
	cfg := r.run.Config
	title := r.run.Sections[i].Title
	content := r.run.Sections[i].Content
	r.mu.Unlock()

	if (stage == models.StageVideo || stage == models.StageQuiz) && strings.TrimSpace(content) == "" {
		return &PrerequisiteError{Stage: stage}
	}

	switch stage {
	case models.StageLecture:
		text, err := retry.Do(ctx, r.policy, "generate-section", func(ctx context.Context) (string, error) {
			return r.adapter.GenerateSectionText(ctx, gemini.SectionTextParams{
				SectionTitle: title,
				CourseTitle:  cfg.Topic,
				AudienceTags: cfg.AudienceTags,
			})
		})
		if err != nil {
			return err
		}
		r.mutate(func(run *Run) {
			run.Sections[i].Content = text
			run.Sections[i].Error = nil
		})

	case models.StageVideo:
		url, err := retry.Do(ctx, r.policy, "generate-video", func(ctx context.Context) (string, error) {
			return r.adapter.GenerateVideo(ctx, gemini.VideoParams{
				SectionTitle:   title,
				SectionContent: content,
				AudienceTags:   cfg.AudienceTags,
			})
		})
		if err != nil {
			return err
		}
		r.mutate(func(run *Run) {
			run.Sections[i].VideoURL = url
			run.Sections[i].Error = nil
		})

	case models.StageQuiz:
		questions, err := retry.Do(ctx, r.policy, "generate-questions", func(ctx context.Context) ([]models.Question, error) {
			return r.adapter.GenerateQuestions(ctx, gemini.QuestionParams{
				SectionTitle:   title,
				SectionContent: content,
				AudienceTags:   cfg.AudienceTags,
				QuestionTypes:  cfg.QuestionTypes,
				NumQuestions:   cfg.QuestionsPerSection,
			})
		})
		if err != nil {
			return err
		}
		r.mutate(func(run *Run) {
			run.Sections[i].Questions = questions
			run.Sections[i].Error = nil
		})

	case models.StageDiscussion:
		prompt, err := retry.Do(ctx, r.policy, "generate-discussion", func(ctx context.Context) (string, error) {
			return r.adapter.GenerateDiscussionPrompt(ctx, gemini.DiscussionParams{
				SectionTitle:   title,
				SectionContent: content,
				AudienceTags:   cfg.AudienceTags,
			})
		})
		if err != nil {
			return err
		}
		r.mutate(func(run *Run) {
			run.Sections[i].DiscussionPrompt = prompt
			run.Sections[i].Error = nil
		})

	default:
		return &gemini.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}

	return nil
}

// RetryStage re-runs exactly one failed (section, stage) pair, leaving
// every other section untouched. It is only available between runs (the
// isGenerating guard); while the call is in flight the section's error
// record carries Retrying so the UI can disable its retry control.
func (r *Runner) RetryStage(ctx context.Context, i int, stage models.Stage) error {
	r.mu.Lock()
	if r.generating {
		r.mu.Unlock()
		return ErrRunInFlight
	}
	if r.run == nil {
		r.mu.Unlock()
		return errors.New("no run to retry")
	}
	if i < 0 || i >= len(r.run.Sections) {
		r.mu.Unlock()
		return fmt.Errorf("section index %d out of range", i)
	}
	sec := r.run.Sections[i]
	// Retry targets a recorded failure, or a stage whose output is still
	// missing (the dependent stage after its prerequisite was fixed).
	if sec.Error == nil && !stageOutputMissing(sec, stage) {
		r.mu.Unlock()
		return fmt.Errorf("section %d has nothing to retry for stage %s", i, stage)
	}
	if (stage == models.StageVideo || stage == models.StageQuiz) && strings.TrimSpace(sec.Content) == "" {
		r.mu.Unlock()
		// Local condition: fix the lecture stage first. No backend call.
		return &PrerequisiteError{Stage: stage}
	}
	r.generating = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.generating = false
		r.mu.Unlock()
	}()

	r.mutate(func(run *Run) {
		if run.Sections[i].Error != nil {
			run.Sections[i].Error.Retrying = true
		} else {
			run.Sections[i].Error = &models.SectionError{Stage: stage, Message: "retrying", Retrying: true}
		}
	})

	err := r.executeStage(ctx, i, stage)

	r.mutate(func(run *Run) {
		if err != nil {
			run.Sections[i].Error = &models.SectionError{Stage: stage, Message: err.Error()}
		}
		// On success executeStage already wrote the result and cleared
		// the error record.
	})

	return err
}

// stageOutputMissing reports whether the section has no result yet for the
// given stage.
func stageOutputMissing(sec models.Section, stage models.Stage) bool {
	switch stage {
	case models.StageLecture:
		return strings.TrimSpace(sec.Content) == ""
	case models.StageVideo:
		return sec.VideoURL == ""
	case models.StageQuiz:
		return len(sec.Questions) == 0
	case models.StageDiscussion:
		return sec.DiscussionPrompt == ""
	}
	return false
}

// cloneRun deep-copies a run so observers and snapshots never alias the
// live sections list.
func cloneRun(run *Run) Run {
	out := *run
	out.Config.AudienceTags = append([]string(nil), run.Config.AudienceTags...)
	out.Config.CustomTitles = append([]string(nil), run.Config.CustomTitles...)
	out.Config.StageOrder = append([]models.Stage(nil), run.Config.StageOrder...)
	out.Config.QuestionTypes = append([]string(nil), run.Config.QuestionTypes...)

	out.Sections = make([]models.Section, len(run.Sections))
	for i, sec := range run.Sections {
		copied := sec
		copied.Questions = make([]models.Question, len(sec.Questions))
		for j, q := range sec.Questions {
			cq := q
			cq.Options = append([]string(nil), q.Options...)
			copied.Questions[j] = cq
		}
		if len(sec.Questions) == 0 {
			copied.Questions = nil
		}
		if sec.Error != nil {
			e := *sec.Error
			copied.Error = &e
		}
		out.Sections[i] = copied
	}
	return out
}
