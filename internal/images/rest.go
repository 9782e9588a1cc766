package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// RESTClient calls the Imagen predict endpoint. The genai Go SDK exposes no
// image-generation surface, so the REST API is spoken directly.
type RESTClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewRESTClient returns a client for the given model ("imagen-..." family).
func NewRESTClient(apiKey, model string) *RESTClient {
	return &RESTClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
	}
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount      int    `json:"sampleCount"`
	AspectRatio      string `json:"aspectRatio"`
	PersonGeneration string `json:"personGeneration"`
	IncludeRaiReason bool   `json:"includeRaiReason"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
		RaiFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
}

// Generate requests a single 16:9 image for prompt.
func (c *RESTClient) Generate(ctx context.Context, prompt string) (*Result, error) {
	body, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{
			SampleCount:      1,
			AspectRatio:      "16:9",
			PersonGeneration: "allow_adult",
			IncludeRaiReason: true,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:predict?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagen predict: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagen predict: %s: %s", resp.Status, truncate(data, 200))
	}

	var pr predictResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("imagen predict: decode: %w", err)
	}

	result := &Result{}
	for _, p := range pr.Predictions {
		img := Image{FilteredReason: p.RaiFilteredReason}
		if p.BytesBase64Encoded != "" {
			raw, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
			if err != nil {
				return nil, fmt.Errorf("imagen predict: payload: %w", err)
			}
			img.Bytes = raw
		}
		result.Images = append(result.Images, img)
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
