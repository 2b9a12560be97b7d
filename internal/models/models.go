package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one content-generation step applied per section.
type Stage string

const (
	StageLecture    Stage = "lecture"
	StageVideo      Stage = "video"
	StageQuiz       Stage = "quiz"
	StageDiscussion Stage = "discussion"
)

// AllStages lists every stage in its default order.
var AllStages = []Stage{StageLecture, StageVideo, StageQuiz, StageDiscussion}

// Valid reports whether s is a known stage name.
func (s Stage) Valid() bool {
	switch s {
	case StageLecture, StageVideo, StageQuiz, StageDiscussion:
		return true
	}
	return false
}

// Question type identifiers accepted by the quiz stage.
const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeTrueFalse      = "true_false"
)

// Question is a single quiz question produced by the quiz stage.
// Answer must match one of Options, either exactly or through the
// true/false synonym rule; a question violating that is unanswerable.
type Question struct {
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
	Answer       string   `json:"answer"`
	Hint         string   `json:"hint,omitempty"`
}

// SectionError records the most recent failure of a stage for a section.
// It is cleared on the next success for that stage.
type SectionError struct {
	Stage    Stage  `json:"stage"`
	Message  string `json:"message"`
	Retrying bool   `json:"retrying"`
}

// Section is one chapter of a generated course. It is created empty
// (title only) when the outline completes and filled in stage by stage.
type Section struct {
	Title            string        `json:"title"`
	Content          string        `json:"content"`
	VideoURL         string        `json:"video_url,omitempty"`
	Questions        []Question    `json:"questions,omitempty"`
	DiscussionPrompt string        `json:"discussion_prompt,omitempty"`
	Error            *SectionError `json:"error,omitempty"`
}

// Course is a persisted course: the topic prompt plus the generated sections.
type Course struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	Sections  []Section `json:"sections,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CourseListResponse is the response for listing courses.
type CourseListResponse struct {
	Courses []Course `json:"courses"`
	Total   int64    `json:"total"`
}

// ErrorResponse is the JSON error envelope returned by every handler.
type ErrorResponse struct {
	Error string `json:"error"`
}
