package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"

	"veoGenerator/internal/core"
	"veoGenerator/internal/models"
)

// Generator is the remote video generation service, called with one API key
// per request.
type Generator interface {
	StartGeneration(ctx context.Context, settings models.Settings, image []byte, key string) (*models.Operation, error)
	CheckStatus(ctx context.Context, op *models.Operation, key string) (*models.Operation, error)
	FetchVideo(ctx context.Context, locator string, key string) ([]byte, error)
}

// VeoClient talks to the Gemini API through genai, keeping one client per key.
type VeoClient struct {
	mu      sync.RWMutex
	clients map[string]*genai.Client
	newFn   func(ctx context.Context, key string) (*genai.Client, error)
}

func NewVeoClient() *VeoClient {
	return &VeoClient{
		clients: make(map[string]*genai.Client),
		newFn: func(ctx context.Context, key string) (*genai.Client, error) {
			return genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  key,
				Backend: genai.BackendGeminiAPI,
			})
		},
	}
}

func (c *VeoClient) client(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	cl, ok := c.clients[key]
	c.mu.RUnlock()
	if ok {
		return cl, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}
	cl, err := c.newFn(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.clients[key] = cl
	return cl, nil
}

func (c *VeoClient) StartGeneration(ctx context.Context, settings models.Settings, image []byte, key string) (*models.Operation, error) {
	model := core.GetModelByID(settings.Model)
	if model == nil {
		return nil, fmt.Errorf("%w: model %q", core.ErrUnsupportedOption, settings.Model)
	}
	cl, err := c.client(ctx, key)
	if err != nil {
		return nil, err
	}

	var img *genai.Image
	if len(image) > 0 && settings.Image != nil {
		img = &genai.Image{ImageBytes: image, MIMEType: settings.Image.MIMEType}
	}

	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    settings.AspectRatio,
		Resolution:     settings.Resolution,
	}

	log.Printf("[Veo] Starting %s (%s, %s)", model.APIModelID, settings.AspectRatio, settings.Resolution)
	op, err := cl.Models.GenerateVideos(ctx, model.APIModelID, settings.Prompt, img, config)
	if err != nil {
		return nil, classify("generate videos", err)
	}
	return toOperation(op), nil
}

func (c *VeoClient) CheckStatus(ctx context.Context, op *models.Operation, key string) (*models.Operation, error) {
	if op == nil || op.Name == "" {
		return nil, errors.New("operation has no name")
	}
	cl, err := c.client(ctx, key)
	if err != nil {
		return nil, err
	}

	next, err := cl.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		return nil, classify("get operation", err)
	}
	return toOperation(next), nil
}

func (c *VeoClient) FetchVideo(ctx context.Context, locator string, key string) ([]byte, error) {
	cl, err := c.client(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := cl.Files.Download(ctx, &genai.Video{URI: locator}, nil)
	if err != nil {
		return nil, classify("download video", err)
	}
	return data, nil
}

func toOperation(op *genai.GenerateVideosOperation) *models.Operation {
	if op == nil {
		return &models.Operation{}
	}
	out := &models.Operation{Name: op.Name, Done: op.Done}
	if len(op.Error) > 0 {
		out.Error = operationError(op.Error)
	}
	if op.Response != nil {
		for _, v := range op.Response.GeneratedVideos {
			if v != nil && v.Video != nil && v.Video.URI != "" {
				out.VideoURI = v.Video.URI
				break
			}
		}
		if out.VideoURI == "" && op.Done && out.Error == "" && len(op.Response.RAIMediaFilteredReasons) > 0 {
			out.Error = op.Response.RAIMediaFilteredReasons[0]
		}
	}
	return out
}

func operationError(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprint(e)
}
