package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const (
	// ModelName is the Gemini model to use
	ModelName = "gemini-2.0-flash"
	// callTimeout bounds a single generation call; retries are handled
	// by the caller, not here.
	callTimeout = 2 * time.Minute
)

// Client wraps the Gemini client. One instance per process, injected into
// every consumer; there is no package-level singleton.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel

	mu      sync.Mutex
	threads map[string]*genai.ChatSession
}

// NewClient creates a new Gemini client from the GEMINI_API_KEY
// environment variable.
func NewClient(ctx context.Context) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(ModelName)
	model.SetTemperature(0.7)
	model.SetTopK(40)
	model.SetTopP(0.95)

	return &Client{
		client:  client,
		model:   model,
		threads: make(map[string]*genai.ChatSession),
	}, nil
}

// Close closes the underlying Gemini client.
func (c *Client) Close() {
	c.client.Close()
}

// generate sends one prompt to the model and returns the concatenated
// response text. Call errors are classified transient, an empty or
// candidate-less response is a format error.
func (c *Client) generate(ctx context.Context, op string, parts ...genai.Part) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", transientErr(op, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", formatErr(op, "no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", formatErr(op, "response contained no text parts")
	}
	return out, nil
}

// thread returns the chat session for id, or a fresh session (with a new
// id) when id is empty or unknown. The bool reports whether the session
// already existed.
func (c *Client) thread(id string) (string, *genai.ChatSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != "" {
		if cs, ok := c.threads[id]; ok {
			return id, cs, true
		}
	}
	id = uuid.New().String()
	cs := c.model.StartChat()
	c.threads[id] = cs
	return id, cs, false
}
