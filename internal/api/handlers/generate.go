package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"courseforge/internal/gemini"
	"courseforge/internal/models"
	"courseforge/internal/pipeline"
	"courseforge/internal/retry"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// session key under which a browser's tutor conversation handle lives
const chatThreadSessionKey = "chat_thread"

type outlineRequest struct {
	Prompt              string   `json:"prompt"`
	NumSections         any      `json:"numSections"`
	TargetAudience      []string `json:"targetAudience"`
	CustomSectionTitles []string `json:"customSectionTitles"`
}

// HandleGenerateOutline generates chapter titles for a topic, preserving
// any user-supplied titles in place.
func (h *Handler) HandleGenerateOutline(c *gin.Context) {
	var req outlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	cfg := pipeline.Config{
		Topic:        req.Prompt,
		SectionCount: coerceSectionCount(req.NumSections),
		AudienceTags: req.TargetAudience,
		CustomTitles: req.CustomSectionTitles,
	}

	outline, err := pipeline.BuildOutline(c.Request.Context(), h.Gemini, h.Policy, cfg)
	if err != nil {
		respondError(c, "generate-outline", err)
		return
	}

	log.Printf("INFO: generated outline with %d titles for topic %q", len(outline), req.Prompt)
	c.JSON(http.StatusOK, gin.H{"outline": outline})
}

// coerceSectionCount accepts whatever JSON type the client sent for the
// section count; non-numeric input coerces to the bound, never to zero.
func coerceSectionCount(v any) int {
	switch n := v.(type) {
	case float64:
		return pipeline.ClampSectionCount(int(n))
	case string:
		return pipeline.ParseSectionCount(n)
	case nil:
		return pipeline.MinSections
	default:
		return pipeline.ParseSectionCount(fmt.Sprint(v))
	}
}

type sectionRequest struct {
	SectionTitle   string   `json:"sectionTitle"`
	CourseTitle    string   `json:"courseTitle"`
	TargetAudience []string `json:"targetAudience"`
}

// HandleGenerateSection generates the lecture text for one section.
func (h *Handler) HandleGenerateSection(c *gin.Context) {
	var req sectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	content, err := retry.Do(c.Request.Context(), h.Policy, "generate-section", func(ctx context.Context) (string, error) {
		return h.Gemini.GenerateSectionText(ctx, gemini.SectionTextParams{
			SectionTitle: req.SectionTitle,
			CourseTitle:  req.CourseTitle,
			AudienceTags: req.TargetAudience,
		})
	})
	if err != nil {
		respondError(c, "generate-section", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"content": content})
}

type videoRequest struct {
	SectionTitle   string   `json:"sectionTitle"`
	SectionContent string   `json:"sectionContent"`
	TargetAudience []string `json:"targetAudience"`
}

// HandleGenerateVideo recommends one video for a section.
func (h *Handler) HandleGenerateVideo(c *gin.Context) {
	var req videoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	videoURL, err := retry.Do(c.Request.Context(), h.Policy, "generate-video", func(ctx context.Context) (string, error) {
		return h.Gemini.GenerateVideo(ctx, gemini.VideoParams{
			SectionTitle:   req.SectionTitle,
			SectionContent: req.SectionContent,
			AudienceTags:   req.TargetAudience,
		})
	})
	if err != nil {
		respondError(c, "generate-video", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"videoUrl": videoURL})
}

type questionsRequest struct {
	SectionTitle          string   `json:"sectionTitle"`
	SectionContent        string   `json:"sectionContent"`
	TargetAudience        []string `json:"targetAudience"`
	SelectedQuestionTypes string   `json:"selectedQuestionTypes"`
	NumQuestions          int      `json:"numQuestions"`
}

// HandleGenerateQuestions generates quiz questions for a section. The
// question types arrive as a comma-joined string.
func (h *Handler) HandleGenerateQuestions(c *gin.Context) {
	var req questionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	types := lo.Filter(strings.Split(req.SelectedQuestionTypes, ","), func(t string, _ int) bool {
		return strings.TrimSpace(t) != ""
	})
	types = lo.Map(types, func(t string, _ int) string { return strings.TrimSpace(t) })

	numQuestions := req.NumQuestions
	if numQuestions == 0 {
		numQuestions = 2
	}

	questions, err := retry.Do(c.Request.Context(), h.Policy, "generate-questions", func(ctx context.Context) ([]models.Question, error) {
		return h.Gemini.GenerateQuestions(ctx, gemini.QuestionParams{
			SectionTitle:   req.SectionTitle,
			SectionContent: req.SectionContent,
			AudienceTags:   req.TargetAudience,
			QuestionTypes:  types,
			NumQuestions:   numQuestions,
		})
	})
	if err != nil {
		respondError(c, "generate-questions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

type hintRequest struct {
	Question       string `json:"question"`
	SectionContent string `json:"sectionContent"`
}

// HandleGenerateHint generates a hint for one quiz question.
func (h *Handler) HandleGenerateHint(c *gin.Context) {
	var req hintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	hint, err := retry.Do(c.Request.Context(), h.Policy, "generate-hint", func(ctx context.Context) (string, error) {
		return h.Gemini.GenerateHint(ctx, gemini.HintParams{
			Question:       req.Question,
			SectionContent: req.SectionContent,
		})
	})
	if err != nil {
		respondError(c, "generate-hint", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hint": hint})
}

type essayRequest struct {
	SectionTitle   string `json:"sectionTitle"`
	SectionContent string `json:"sectionContent"`
	UserText       string `json:"userText"`
}

// HandleGradeEssay returns feedback on a learner's essay answer.
func (h *Handler) HandleGradeEssay(c *gin.Context) {
	var req essayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	feedback, err := retry.Do(c.Request.Context(), h.Policy, "grade-essay", func(ctx context.Context) (string, error) {
		return h.Gemini.GradeEssay(ctx, gemini.EssayParams{
			SectionTitle:   req.SectionTitle,
			SectionContent: req.SectionContent,
			UserText:       req.UserText,
		})
	})
	if err != nil {
		respondError(c, "grade-essay", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedback": feedback})
}

type chatRequest struct {
	AllContent string `json:"allContent"`
	Question   string `json:"question"`
	ThreadID   string `json:"threadId"`
}

// HandleChat runs one tutoring turn. The conversation handle is kept in
// the browser session, so a returning client continues its thread even
// when it omits threadId.
func (h *Handler) HandleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session := sessions.Default(c)
	threadID := req.ThreadID
	if threadID == "" {
		if stored, ok := session.Get(chatThreadSessionKey).(string); ok {
			threadID = stored
		}
	}

	result, err := retry.Do(c.Request.Context(), h.Policy, "chat", func(ctx context.Context) (gemini.ChatResult, error) {
		return h.Gemini.ChatTurn(ctx, gemini.ChatParams{
			AllContent: req.AllContent,
			Question:   req.Question,
			ThreadID:   threadID,
		})
	})
	if err != nil {
		respondError(c, "chat", err)
		return
	}

	session.Set(chatThreadSessionKey, result.ThreadID)
	if err := session.Save(); err != nil {
		log.Printf("WARN: failed to persist chat thread in session: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"answer": result.Answer, "threadId": result.ThreadID})
}
