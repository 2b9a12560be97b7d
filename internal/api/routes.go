package api

import (
	"courseforge/internal/api/handlers"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(router *gin.Engine, handler *handlers.Handler) {
	router.Use(CORSMiddleware())

	api := router.Group("/api")
	{
		// Generation endpoints: each forwards one operation to the
		// backend through the shared retry policy.
		api.POST("/generate-outline", handler.HandleGenerateOutline)
		api.POST("/generate-section", handler.HandleGenerateSection)
		api.POST("/generate-video", handler.HandleGenerateVideo)
		api.POST("/generate-questions", handler.HandleGenerateQuestions)
		api.POST("/generate-hint", handler.HandleGenerateHint)
		api.POST("/grade-essay", handler.HandleGradeEssay)
		api.POST("/chat", handler.HandleChat)

		// Full server-side pipeline run.
		api.POST("/courses/generate", handler.HandleGenerateCourse)

		// Course persistence (pass-through save/load).
		api.POST("/courses", handler.HandleSaveCourse)
		api.GET("/courses", handler.HandleListCourses)
		api.GET("/courses/:courseId", handler.HandleGetCourse)
		api.DELETE("/courses/:courseId", handler.HandleDeleteCourse)

		// Snapshot export/import.
		api.POST("/snapshots/export", handler.HandleExportSnapshot)
		api.POST("/snapshots/import", handler.HandleImportSnapshot)
	}
}
