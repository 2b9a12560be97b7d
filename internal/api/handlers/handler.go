package handlers

import (
	"errors"
	"log"
	"net/http"

	"courseforge/internal/db"
	"courseforge/internal/gemini"
	"courseforge/internal/retry"
	"courseforge/internal/snapshot"

	"github.com/gin-gonic/gin"
)

// Handler contains the API handlers' dependencies. Everything is injected
// once at startup; handlers hold no globals.
type Handler struct {
	DB     *db.DB
	Gemini *gemini.Client
	Store  *snapshot.Store
	Policy retry.Policy
}

// NewHandler creates a new Handler. store may be nil when snapshot
// archiving is not configured.
func NewHandler(database *db.DB, client *gemini.Client, store *snapshot.Store) *Handler {
	return &Handler{
		DB:     database,
		Gemini: client,
		Store:  store,
		Policy: retry.Default,
	}
}

// respondError maps the error taxonomy onto HTTP statuses and always
// surfaces the underlying message: validation is the caller's fault,
// transient and format failures are the backend's.
func respondError(c *gin.Context, op string, err error) {
	var ve *gemini.ValidationError
	if errors.As(err, &ve) {
		log.Printf("WARN: %s rejected: %v", op, err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var te *gemini.TransientError
	var fe *gemini.FormatError
	if errors.As(err, &te) || errors.As(err, &fe) {
		log.Printf("ERROR: %s failed: %v", op, err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	log.Printf("ERROR: %s failed: %v", op, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
