package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"courseforge/internal/models"
	"courseforge/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type generateCourseRequest struct {
	Prompt              string   `json:"prompt"`
	NumSections         any      `json:"numSections"`
	TargetAudience      []string `json:"targetAudience"`
	CustomSectionTitles []string `json:"customSectionTitles"`
	Stages              []string `json:"stages"`
	QuestionTypes       []string `json:"questionTypes"`
	QuestionsPerSection int      `json:"questionsPerSection"`
}

// HandleGenerateCourse runs a full generation pipeline synchronously and
// returns the terminal run state, failed stages included.
func (h *Handler) HandleGenerateCourse(c *gin.Context) {
	var req generateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cfg := pipeline.Config{
		Topic:               req.Prompt,
		SectionCount:        coerceSectionCount(req.NumSections),
		AudienceTags:        req.TargetAudience,
		CustomTitles:        req.CustomSectionTitles,
		QuestionTypes:       req.QuestionTypes,
		QuestionsPerSection: req.QuestionsPerSection,
	}
	for _, s := range req.Stages {
		cfg.StageOrder = append(cfg.StageOrder, models.Stage(s))
	}

	runner := pipeline.NewRunner(h.Gemini, pipeline.WithPolicy(h.Policy))
	run, err := runner.Start(c.Request.Context(), cfg)
	if err != nil && run.ID == uuid.Nil {
		// Config rejected or run never started; outline failures come back
		// with the run attached so the client sees the partial state.
		respondError(c, "generate-course", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run})
}

type saveCourseRequest struct {
	Title    string           `json:"title"`
	Prompt   string           `json:"prompt"`
	Sections []models.Section `json:"sections"`
}

// HandleSaveCourse persists a finished course.
func (h *Handler) HandleSaveCourse(c *gin.Context) {
	var req saveCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	course := models.Course{
		ID:        uuid.New(),
		Title:     req.Title,
		Prompt:    req.Prompt,
		Sections:  req.Sections,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := h.DB.Queries.SaveCourse(c.Request.Context(), course); err != nil {
		log.Printf("ERROR: failed to save course %q: %v", req.Title, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save course"})
		return
	}

	log.Printf("INFO: saved course %s (%q, %d sections)", course.ID, course.Title, len(course.Sections))
	c.JSON(http.StatusCreated, gin.H{"id": course.ID})
}

// HandleListCourses returns saved course headers, newest first.
func (h *Handler) HandleListCourses(c *gin.Context) {
	courses, total, err := h.DB.Queries.ListCourses(c.Request.Context())
	if err != nil {
		log.Printf("ERROR: failed to list courses: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list courses"})
		return
	}

	c.JSON(http.StatusOK, models.CourseListResponse{Courses: courses, Total: total})
}

// HandleGetCourse loads one full course by id.
func (h *Handler) HandleGetCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid course ID"})
		return
	}

	course, err := h.DB.Queries.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		log.Printf("ERROR: failed to load course %s: %v", courseID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load course"})
		return
	}

	c.JSON(http.StatusOK, course)
}

// HandleDeleteCourse removes a course and everything under it.
func (h *Handler) HandleDeleteCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid course ID"})
		return
	}

	if err := h.DB.Queries.DeleteCourse(c.Request.Context(), courseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		log.Printf("ERROR: failed to delete course %s: %v", courseID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to delete course"})
		return
	}

	log.Printf("INFO: deleted course %s", courseID)
	c.JSON(http.StatusOK, gin.H{"message": "course deleted"})
}
