package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"courseforge/internal/gemini"
	"courseforge/internal/models"

	"github.com/samber/lo"
)

// Bounds for user-supplied counts. Out-of-range values are clamped, not
// rejected.
const (
	MinSections = 3
	MaxSections = 10

	MinQuestionsPerSection = 1
	MaxQuestionsPerSection = 5
)

// DefaultStageOrder is used when a run is started without an explicit
// stage selection.
var DefaultStageOrder = []models.Stage{models.StageLecture, models.StageVideo, models.StageQuiz}

// Config is everything a run needs: the topic plus the knobs the user can
// turn before generation starts.
type Config struct {
	Topic               string         `json:"topic"`
	SectionCount        int            `json:"section_count"`
	AudienceTags        []string       `json:"audience_tags,omitempty"`
	CustomTitles        []string       `json:"custom_titles,omitempty"`
	StageOrder          []models.Stage `json:"stage_order"`
	QuestionTypes       []string       `json:"question_types,omitempty"`
	QuestionsPerSection int            `json:"questions_per_section"`
}

// ClampSectionCount forces n into [MinSections, MaxSections].
func ClampSectionCount(n int) int {
	if n < MinSections {
		return MinSections
	}
	if n > MaxSections {
		return MaxSections
	}
	return n
}

// ParseSectionCount converts raw user input to a section count. Non-numeric
// input coerces to the lower bound rather than zero.
func ParseSectionCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return MinSections
	}
	return ClampSectionCount(n)
}

// ClampQuestionsPerSection forces n into [1, 5].
func ClampQuestionsPerSection(n int) int {
	if n < MinQuestionsPerSection {
		return MinQuestionsPerSection
	}
	if n > MaxQuestionsPerSection {
		return MaxQuestionsPerSection
	}
	return n
}

// normalize clamps the numeric knobs and validates the rest. Validation
// failures are gemini.ValidationError so they share the no-retry taxonomy
// with adapter-level input errors.
func (c *Config) normalize() error {
	c.Topic = strings.TrimSpace(c.Topic)
	if c.Topic == "" {
		return &gemini.ValidationError{Field: "topic", Reason: "topic is required"}
	}

	c.SectionCount = ClampSectionCount(c.SectionCount)
	c.QuestionsPerSection = ClampQuestionsPerSection(c.QuestionsPerSection)

	if len(c.StageOrder) == 0 {
		c.StageOrder = append([]models.Stage(nil), DefaultStageOrder...)
	}
	seen := make(map[models.Stage]bool, len(c.StageOrder))
	for _, s := range c.StageOrder {
		if !s.Valid() {
			return &gemini.ValidationError{Field: "stageOrder", Reason: fmt.Sprintf("unknown stage %q", s)}
		}
		if seen[s] {
			return &gemini.ValidationError{Field: "stageOrder", Reason: fmt.Sprintf("stage %q listed twice", s)}
		}
		seen[s] = true
	}

	if seen[models.StageQuiz] {
		types := lo.Filter(c.QuestionTypes, func(t string, _ int) bool { return strings.TrimSpace(t) != "" })
		if len(types) == 0 {
			return &gemini.ValidationError{Field: "questionTypes", Reason: "select at least one question type"}
		}
		for _, t := range types {
			if t != models.QuestionTypeMultipleChoice && t != models.QuestionTypeTrueFalse {
				return &gemini.ValidationError{Field: "questionTypes", Reason: fmt.Sprintf("unknown question type %q", t)}
			}
		}
		c.QuestionTypes = types
	}

	// Custom titles align positionally with sections; extra entries are
	// dropped, missing ones become generation slots.
	if len(c.CustomTitles) > c.SectionCount {
		c.CustomTitles = c.CustomTitles[:c.SectionCount]
	}

	return nil
}
