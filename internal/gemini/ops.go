package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"courseforge/internal/models"
	"courseforge/internal/youtube"

	"github.com/google/generative-ai-go/genai"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// OutlineParams are the inputs for chapter-title generation. Count is the
// number of titles to generate, which may be fewer than the course's
// section count when the user supplied some titles themselves.
type OutlineParams struct {
	Topic        string
	Count        int
	AudienceTags []string
	KnownTitles  []string // user-supplied titles, passed for dedup context
}

// SectionTextParams are the inputs for lecture-text generation.
type SectionTextParams struct {
	SectionTitle string
	CourseTitle  string
	AudienceTags []string
}

// VideoParams are the inputs for video recommendation.
type VideoParams struct {
	SectionTitle   string
	SectionContent string
	AudienceTags   []string
}

// QuestionParams are the inputs for quiz generation.
type QuestionParams struct {
	SectionTitle   string
	SectionContent string
	AudienceTags   []string
	QuestionTypes  []string
	NumQuestions   int
}

// HintParams are the inputs for hint generation.
type HintParams struct {
	Question       string
	SectionContent string
	AudienceTags   []string
}

// DiscussionParams are the inputs for discussion-prompt generation.
type DiscussionParams struct {
	SectionTitle   string
	SectionContent string
	AudienceTags   []string
}

// EssayParams are the inputs for essay grading.
type EssayParams struct {
	SectionTitle   string
	SectionContent string
	UserText       string
}

// ChatParams are the inputs for one tutoring chat turn. An empty ThreadID
// starts a new conversation.
type ChatParams struct {
	AllContent   string
	Question     string
	ThreadID     string
	AudienceTags []string
}

// ChatResult is the answer plus the conversation handle the caller must
// send back on the next turn.
type ChatResult struct {
	Answer   string `json:"answer"`
	ThreadID string `json:"thread_id"`
}

// numbering prefixes models like to put in front of chapter titles
var titleNoisePattern = regexp.MustCompile(`^[\d\.、第章：:\-\*\s)]+`)

// GenerateOutline asks the model for exactly p.Count chapter titles for the
// topic. The result has exactly p.Count entries; a shorter response is a
// FormatError so the caller's retry policy gets another attempt.
func (c *Client) GenerateOutline(ctx context.Context, p OutlineParams) ([]string, error) {
	if strings.TrimSpace(p.Topic) == "" {
		return nil, validationErr("topic", "topic is required")
	}
	if p.Count < 1 {
		return nil, validationErr("count", "must generate at least one title")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a course designer. Produce %d chapter titles for a course on %q.%s\n",
		p.Count, p.Topic, audienceText(p.AudienceTags))
	if known := lo.Filter(p.KnownTitles, func(t string, _ int) bool { return strings.TrimSpace(t) != "" }); len(known) > 0 {
		fmt.Fprintf(&sb, "These chapter titles already exist, do not repeat them: %s.\n", strings.Join(known, "; "))
	}
	sb.WriteString("Avoid duplicates. Respond with a plain JSON array of strings, no numbering, no extra commentary.")

	text, err := c.generate(ctx, "generate-outline", genai.Text(sb.String()))
	if err != nil {
		return nil, err
	}

	titles := parseOutline(text)
	if len(titles) < p.Count {
		return nil, formatErr("generate-outline",
			fmt.Sprintf("wanted %d titles, response contained %d", p.Count, len(titles)))
	}
	return titles[:p.Count], nil
}

// parseOutline extracts chapter titles from model output: a JSON string
// array when possible, otherwise one title per line with numbering noise
// stripped out.
func parseOutline(text string) []string {
	if doc := extractJSON(text); doc != "" {
		parsed := gjson.Parse(doc)
		if parsed.IsArray() {
			titles := lo.FilterMap(parsed.Array(), func(v gjson.Result, _ int) (string, bool) {
				t := cleanTitle(v.String())
				return t, t != ""
			})
			if len(titles) > 0 {
				return titles
			}
		}
	}

	return lo.FilterMap(strings.Split(text, "\n"), func(line string, _ int) (string, bool) {
		t := cleanTitle(line)
		return t, t != ""
	})
}

func cleanTitle(s string) string {
	s = titleNoisePattern.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.Trim(s, `"'[]{},`)
	return strings.TrimSpace(s)
}

// GenerateSectionText produces the markdown lecture text for one section.
func (c *Client) GenerateSectionText(ctx context.Context, p SectionTextParams) (string, error) {
	if strings.TrimSpace(p.SectionTitle) == "" {
		return "", validationErr("sectionTitle", "section title is required")
	}
	if strings.TrimSpace(p.CourseTitle) == "" {
		return "", validationErr("courseTitle", "course title is required")
	}

	prompt := fmt.Sprintf(
		"You are a course designer. Write the lecture notes for the chapter %q of the course %q.%s "+
			"Use markdown, stay under 400 words, and return only the notes with no surrounding commentary.",
		p.SectionTitle, p.CourseTitle, audienceText(p.AudienceTags))

	return c.generate(ctx, "generate-section", genai.Text(prompt))
}

// GenerateVideo asks for one recommended YouTube video for the section and
// returns its canonical watch URL. A response without a recognizable video
// URL is a FormatError.
func (c *Client) GenerateVideo(ctx context.Context, p VideoParams) (string, error) {
	if strings.TrimSpace(p.SectionTitle) == "" && strings.TrimSpace(p.SectionContent) == "" {
		return "", validationErr("sectionTitle", "section title or content is required")
	}

	prompt := fmt.Sprintf(
		"Recommend exactly one real, well-known YouTube video that teaches the material below.%s "+
			"Respond with only the video URL, nothing else.\n\nChapter: %s\n\n%s",
		audienceText(p.AudienceTags), p.SectionTitle, p.SectionContent)

	text, err := c.generate(ctx, "generate-video", genai.Text(prompt))
	if err != nil {
		return "", err
	}

	url, ok := youtube.Canonical(text)
	if !ok {
		return "", formatErr("generate-video", "response did not contain a YouTube URL")
	}
	return url, nil
}

// GenerateQuestions produces quiz questions for a section. The response
// must be a JSON array; anything else is a FormatError. True/false
// questions use the fixed 是/否 option pair.
func (c *Client) GenerateQuestions(ctx context.Context, p QuestionParams) ([]models.Question, error) {
	if strings.TrimSpace(p.SectionTitle) == "" || strings.TrimSpace(p.SectionContent) == "" {
		return nil, validationErr("sectionTitle/sectionContent", "section title and content are required")
	}
	if p.NumQuestions < 1 || p.NumQuestions > 5 {
		return nil, validationErr("numQuestions", "must be between 1 and 5")
	}
	types := lo.Filter(p.QuestionTypes, func(t string, _ int) bool { return strings.TrimSpace(t) != "" })
	if len(types) == 0 {
		types = []string{models.QuestionTypeMultipleChoice}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a course designer. Write %d quiz questions for the chapter %q.%s\n",
		p.NumQuestions, p.SectionTitle, audienceText(p.AudienceTags))
	fmt.Fprintf(&sb, "Allowed question types: %s.\n", strings.Join(types, ", "))
	sb.WriteString(`Respond with only a JSON array in this shape:
[
  {
    "question_text": "...",
    "options": ["...", "..."],
    "answer": "the exact text of the correct option",
    "hint": "a short hint"
  }
]
For true_false questions the options must be exactly ["是", "否"] and the answer must be "是" or "否".
No commentary outside the JSON.`)

	text, err := c.generate(ctx, "generate-questions",
		genai.Text(sb.String()), genai.Text("Chapter content:\n"+p.SectionContent))
	if err != nil {
		return nil, err
	}

	return parseQuestions(text)
}

func parseQuestions(text string) ([]models.Question, error) {
	doc := extractJSON(text)
	if doc == "" || !gjson.Parse(doc).IsArray() {
		return nil, formatErr("generate-questions", "response is not a JSON array")
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(doc), &questions); err != nil {
		return nil, formatErr("generate-questions", err.Error())
	}

	for i, q := range questions {
		if strings.TrimSpace(q.QuestionText) == "" {
			return nil, formatErr("generate-questions", fmt.Sprintf("question %d has no text", i))
		}
		if len(q.Options) < 2 {
			return nil, formatErr("generate-questions", fmt.Sprintf("question %d has fewer than two options", i))
		}
		if strings.TrimSpace(q.Answer) == "" {
			return nil, formatErr("generate-questions", fmt.Sprintf("question %d has no answer", i))
		}
	}
	if len(questions) == 0 {
		return nil, formatErr("generate-questions", "response contained no questions")
	}
	return questions, nil
}

// GenerateHint produces a short hint for one quiz question.
func (c *Client) GenerateHint(ctx context.Context, p HintParams) (string, error) {
	if strings.TrimSpace(p.Question) == "" {
		return "", validationErr("question", "question is required")
	}
	if strings.TrimSpace(p.SectionContent) == "" {
		return "", validationErr("sectionContent", "section content is required")
	}

	prompt := fmt.Sprintf(
		"Based on the chapter content, give one short hint for the quiz question %q.%s "+
			"Do not reveal the answer. Respond with the hint only.",
		p.Question, audienceText(p.AudienceTags))

	return c.generate(ctx, "generate-hint", genai.Text(prompt), genai.Text("Chapter content:\n"+p.SectionContent))
}

// GenerateDiscussionPrompt produces an open discussion/essay prompt for a
// section.
func (c *Client) GenerateDiscussionPrompt(ctx context.Context, p DiscussionParams) (string, error) {
	if strings.TrimSpace(p.SectionTitle) == "" || strings.TrimSpace(p.SectionContent) == "" {
		return "", validationErr("sectionTitle/sectionContent", "section title and content are required")
	}

	prompt := fmt.Sprintf(
		"Write one open-ended discussion question for the chapter %q that asks the learner "+
			"to apply the material in a short essay.%s Respond with the question only.",
		p.SectionTitle, audienceText(p.AudienceTags))

	return c.generate(ctx, "generate-discussion", genai.Text(prompt), genai.Text("Chapter content:\n"+p.SectionContent))
}

// GradeEssay returns written feedback on a learner's essay answer.
func (c *Client) GradeEssay(ctx context.Context, p EssayParams) (string, error) {
	if strings.TrimSpace(p.UserText) == "" {
		return "", validationErr("userText", "essay text is required")
	}
	if strings.TrimSpace(p.SectionTitle) == "" || strings.TrimSpace(p.SectionContent) == "" {
		return "", validationErr("sectionTitle/sectionContent", "section title and content are required")
	}

	prompt := fmt.Sprintf(
		"You are a teaching assistant grading a short essay for the chapter %q. "+
			"Give concise, constructive feedback: what is done well, what is missing, "+
			"and one concrete suggestion. Respond with the feedback only.",
		p.SectionTitle)

	return c.generate(ctx, "grade-essay",
		genai.Text(prompt),
		genai.Text("Chapter content:\n"+p.SectionContent),
		genai.Text("Learner essay:\n"+p.UserText))
}

// ChatTurn runs one turn of the course tutor. The first turn of a thread
// seeds the conversation with the full course content; later turns send
// only the question.
func (c *Client) ChatTurn(ctx context.Context, p ChatParams) (ChatResult, error) {
	if strings.TrimSpace(p.AllContent) == "" {
		return ChatResult{}, validationErr("allContent", "course content is required")
	}
	if strings.TrimSpace(p.Question) == "" {
		return ChatResult{}, validationErr("question", "question is required")
	}

	threadID, session, existed := c.thread(p.ThreadID)

	msg := p.Question
	if !existed {
		msg = fmt.Sprintf(
			"You are the tutor for this course. Answer student questions from the course "+
				"content below; when the content is not enough, say so honestly.%s\n\n"+
				"Course content:\n%s\n\nStudent question: %s",
			audienceText(p.AudienceTags), p.AllContent, p.Question)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := session.SendMessage(ctx, genai.Text(msg))
	if err != nil {
		return ChatResult{}, transientErr("chat", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResult{}, formatErr("chat", "no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return ChatResult{}, formatErr("chat", "response contained no text parts")
	}

	return ChatResult{Answer: answer, ThreadID: threadID}, nil
}

func audienceText(tags []string) string {
	tags = lo.Filter(tags, func(t string, _ int) bool { return strings.TrimSpace(t) != "" })
	if len(tags) == 0 {
		return ""
	}
	return fmt.Sprintf(" The target audience is: %s.", strings.Join(tags, ", "))
}
