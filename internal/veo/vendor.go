package veo

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// VendorClient is the slice of the vendor SDK the generation client
// depends on. The credential travels with each call so a key replaced at
// runtime takes effect on the next generation.
type VendorClient interface {
	GenerateVideos(ctx context.Context, apiKey, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, apiKey string, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// googleVendor implements VendorClient over google.golang.org/genai. The
// underlying client is cached and rebuilt whenever the key changes.
type googleVendor struct {
	mu     sync.Mutex
	apiKey string
	client *genai.Client
}

var _ VendorClient = (*googleVendor)(nil)

func NewGoogleVendor() VendorClient {
	return &googleVendor{}
}

func (g *googleVendor) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil && g.apiKey == apiKey {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g.apiKey = apiKey
	g.client = client
	return client, nil
}

func (g *googleVendor) GenerateVideos(ctx context.Context, apiKey, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	client, err := g.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (g *googleVendor) GetVideosOperation(ctx context.Context, apiKey string, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	client, err := g.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return client.Operations.GetVideosOperation(ctx, op, nil)
}
