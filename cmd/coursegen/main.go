// coursegen generates a full course from the command line and writes the
// result as a snapshot document.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"courseforge/internal/exercise"
	"courseforge/internal/gemini"
	"courseforge/internal/models"
	"courseforge/internal/pipeline"
	"courseforge/internal/snapshot"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagTopic         string
	flagSections      int
	flagStages        []string
	flagQuestionTypes []string
	flagQuestions     int
	flagAudience      []string
	flagTitles        []string
	flagOut           string
	flagArchive       bool
)

func main() {
	root := &cobra.Command{
		Use:   "coursegen",
		Short: "Generate a course outline and its per-section content",
		RunE:  run,
	}

	root.Flags().StringVarP(&flagTopic, "topic", "t", "", "course topic (required)")
	root.Flags().IntVarP(&flagSections, "sections", "n", pipeline.MinSections, "number of sections")
	root.Flags().StringSliceVar(&flagStages, "stages", nil, "stage order (lecture,video,quiz,discussion)")
	root.Flags().StringSliceVar(&flagQuestionTypes, "question-types", []string{models.QuestionTypeMultipleChoice}, "quiz question types")
	root.Flags().IntVarP(&flagQuestions, "questions", "q", 2, "questions per section")
	root.Flags().StringSliceVarP(&flagAudience, "audience", "a", nil, "target audience tags")
	root.Flags().StringSliceVar(&flagTitles, "title", nil, "pin a section title (positional, repeatable)")
	root.Flags().StringVarP(&flagOut, "out", "o", "course.json", "snapshot output file")
	root.Flags().BoolVar(&flagArchive, "archive", false, "also upload the snapshot to object storage")
	root.MarkFlagRequired("topic")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := gemini.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	defer client.Close()

	cfg := pipeline.Config{
		Topic:               flagTopic,
		SectionCount:        pipeline.ClampSectionCount(flagSections),
		AudienceTags:        flagAudience,
		CustomTitles:        flagTitles,
		QuestionTypes:       flagQuestionTypes,
		QuestionsPerSection: flagQuestions,
	}
	for _, s := range flagStages {
		cfg.StageOrder = append(cfg.StageOrder, models.Stage(strings.TrimSpace(s)))
	}

	runner := pipeline.NewRunner(client, pipeline.WithObserver(renderProgress))

	runResult, err := runner.Start(ctx, cfg)
	if err != nil {
		return err
	}

	var failed int
	for _, sec := range runResult.Sections {
		if sec.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		color.Yellow("done with %d failed stage(s); the snapshot records them", failed)
	} else {
		color.Green("done: %d sections generated", len(runResult.Sections))
	}

	data, err := snapshot.Export(runResult, exercise.NewHistory(), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	if err := os.WriteFile(flagOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", flagOut, err)
	}
	fmt.Printf("snapshot written to %s\n", flagOut)

	if flagArchive {
		store, err := snapshot.NewStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize snapshot store: %w", err)
		}
		if store == nil {
			return fmt.Errorf("--archive requires R2 credentials in the environment")
		}
		url, err := store.Upload(ctx, runResult.ID, data)
		if err != nil {
			return fmt.Errorf("failed to archive snapshot: %w", err)
		}
		fmt.Printf("snapshot archived at %s\n", url)
	}

	return nil
}

// renderProgress prints one line per state change; the run copy is safe
// to read without locking.
func renderProgress(run pipeline.Run) {
	if run.OutlineError != "" {
		color.Red("outline failed: %s", run.OutlineError)
		return
	}
	if run.Done {
		return
	}
	if run.CurrentStage == pipeline.StageOutline {
		log.Printf("INFO: generating outline for %q", run.Config.Topic)
		return
	}
	if run.TotalSteps > 0 {
		fmt.Printf("[%d/%d] %s\n", run.CompletedSteps, run.TotalSteps, run.CurrentStage)
	}
}
