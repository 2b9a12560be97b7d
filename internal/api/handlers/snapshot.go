package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"courseforge/internal/exercise"
	"courseforge/internal/pipeline"
	"courseforge/internal/snapshot"

	"github.com/gin-gonic/gin"
)

type exportSnapshotRequest struct {
	Run                pipeline.Run     `json:"run"`
	QuizHistory        []exercise.Entry `json:"quiz_history"`
	DiscussionAnswers  map[int]string   `json:"discussion_answers"`
	DiscussionFeedback map[int]string   `json:"discussion_feedback"`
	Archive            bool             `json:"archive"`
}

// HandleExportSnapshot canonicalizes the posted run state into a
// versioned snapshot document. With archive=true and object storage
// configured, the document is also uploaded and its public URL returned.
func (h *Handler) HandleExportSnapshot(c *gin.Context) {
	var req exportSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	history := exercise.NewHistory()
	history.Restore(req.QuizHistory)

	data, err := snapshot.Export(req.Run, history, req.DiscussionAnswers, req.DiscussionFeedback)
	if err != nil {
		log.Printf("ERROR: failed to export snapshot for run %s: %v", req.Run.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to export snapshot"})
		return
	}

	if req.Archive {
		if h.Store == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot storage is not configured"})
			return
		}
		url, err := h.Store.Upload(c.Request.Context(), req.Run.ID, data)
		if err != nil {
			log.Printf("ERROR: failed to archive snapshot for run %s: %v", req.Run.ID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to archive snapshot"})
			return
		}
		log.Printf("INFO: archived snapshot for run %s at %s", req.Run.ID, url)
		c.JSON(http.StatusOK, gin.H{"url": url})
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

type importSnapshotRequest struct {
	ObjectKey string `json:"objectKey"`
}

// HandleImportSnapshot validates a snapshot document and returns its
// parsed contents. The document comes either inline in the request body
// or, when the body names an objectKey, from object storage.
func (h *Handler) HandleImportSnapshot(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	data := body
	var ref importSnapshotRequest
	if err := json.Unmarshal(body, &ref); err == nil && ref.ObjectKey != "" {
		if h.Store == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot storage is not configured"})
			return
		}
		data, err = h.Store.Fetch(c.Request.Context(), ref.ObjectKey)
		if err != nil {
			log.Printf("ERROR: failed to fetch snapshot %s: %v", ref.ObjectKey, err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to fetch snapshot"})
			return
		}
	}

	snap, err := snapshot.Import(data)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("INFO: imported snapshot for run %s (%d sections)", snap.Run.ID, len(snap.Run.Sections))
	c.JSON(http.StatusOK, snap)
}
