// Package gen wraps the Google generative AI SDK behind the engine's service
// boundaries.
package gen

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ClientCache hands out a genai client for the current API key, recreating it
// only when the key changes. Callers treat it as the single way to obtain a
// client; there is no package-level instance.
type ClientCache struct {
	mu     sync.Mutex
	key    string
	client *genai.Client
}

// NewClientCache returns an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{}
}

// Get returns a client bound to key, reusing the cached one when the key is
// unchanged.
func (c *ClientCache) Get(ctx context.Context, key string) (*genai.Client, error) {
	if key == "" {
		return nil, fmt.Errorf("no API key available")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.key == key {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if c.client != nil {
		c.client.Close()
	}
	c.client = client
	c.key = key
	return client, nil
}

// Close releases the cached client, if any.
func (c *ClientCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
		c.key = ""
	}
}
