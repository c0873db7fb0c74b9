// Package visual generates the hero image for a briefing. Two provider
// shapes are supported: a native models-API call returning inline binary
// parts, and a chat-completions-shaped proxy returning a base64 data-URL.
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"dailybrief/internal/config"
	"dailybrief/internal/limiter"
)

const nativeBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client issues image-generation requests in the configured mode.
type Client struct {
	cfg  config.Image
	http *limiter.Client
}

// NewClient builds an image client from validated configuration.
func NewClient(cfg config.Image, hc *limiter.Client) *Client {
	return &Client{cfg: cfg, http: hc}
}

// Request describes one image generation.
type Request struct {
	Prompt      string
	Reference   []byte // Optional reference image, passed inline
	RefMIME     string // MIME type of the reference, default image/png
	AspectRatio string // e.g. "16:9"
	Size        string // e.g. "2K"
}

// Generate produces raw image bytes for the request.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	if req.RefMIME == "" {
		req.RefMIME = "image/png"
	}
	switch c.cfg.Mode {
	case config.ImageModeProxy:
		return c.generateProxy(ctx, req)
	default:
		return c.generateNative(ctx, req)
	}
}

// native mode: typed models-API request, binary data in inline parts.

type nativePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *nativeInlineData `json:"inline_data,omitempty"`
}

type nativeInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type nativeRequest struct {
	Contents []struct {
		Parts []nativePart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		ImageConfig        struct {
			AspectRatio string `json:"aspectRatio,omitempty"`
			ImageSize   string `json:"imageSize,omitempty"`
		} `json:"imageConfig"`
	} `json:"generationConfig"`
}

type nativeResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generateNative(ctx context.Context, req Request) ([]byte, error) {
	var body nativeRequest
	parts := []nativePart{{Text: req.Prompt}}
	if len(req.Reference) > 0 {
		parts = append(parts, nativePart{InlineData: &nativeInlineData{
			MIMEType: req.RefMIME,
			Data:     base64.StdEncoding.EncodeToString(req.Reference),
		}})
	}
	body.Contents = []struct {
		Parts []nativePart `json:"parts"`
	}{{Parts: parts}}
	body.GenerationConfig.ResponseModalities = []string{"IMAGE", "TEXT"}
	body.GenerationConfig.ImageConfig.AspectRatio = req.AspectRatio
	body.GenerationConfig.ImageConfig.ImageSize = req.Size

	url := fmt.Sprintf("%s/models/%s:generateContent", nativeBaseURL, c.cfg.Model)
	raw, err := c.post(ctx, url, body, map[string]string{"x-goog-api-key": c.cfg.APIKey})
	if err != nil {
		return nil, err
	}

	var parsed nativeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("image: decoding response: %w", err)
	}
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return base64.StdEncoding.DecodeString(part.InlineData.Data)
			}
		}
	}
	return nil, fmt.Errorf("image: no inline image data in response")
}

// proxy mode: chat-completions shape with data-URL images.

type proxyContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type proxyRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string             `json:"role"`
		Content []proxyContentPart `json:"content"`
	} `json:"messages"`
	Modalities []string `json:"modalities"`
}

type proxyResponse struct {
	Choices []struct {
		Message struct {
			Images []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) generateProxy(ctx context.Context, req Request) ([]byte, error) {
	content := []proxyContentPart{{Type: "text", Text: req.Prompt}}
	if len(req.Reference) > 0 {
		part := proxyContentPart{Type: "image_url", ImageURL: &struct {
			URL string `json:"url"`
		}{}}
		part.ImageURL.URL = fmt.Sprintf("data:%s;base64,%s",
			req.RefMIME, base64.StdEncoding.EncodeToString(req.Reference))
		content = append(content, part)
	}

	var body proxyRequest
	body.Model = c.cfg.Model
	body.Messages = []struct {
		Role    string             `json:"role"`
		Content []proxyContentPart `json:"content"`
	}{{Role: "user", Content: content}}
	body.Modalities = []string{"image", "text"}

	raw, err := c.post(ctx, c.cfg.Endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var parsed proxyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("image: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("image: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.Images) == 0 {
		return nil, fmt.Errorf("image: no images in response")
	}
	return decodeDataURL(parsed.Choices[0].Message.Images[0].ImageURL.URL)
}

func (c *Client) post(ctx context.Context, url string, body any, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("image: marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("image: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// decodeDataURL extracts the binary payload from a data: URL.
func decodeDataURL(u string) ([]byte, error) {
	if !strings.HasPrefix(u, "data:") {
		return nil, fmt.Errorf("image: expected data URL, got %.32q", u)
	}
	idx := strings.Index(u, ",")
	if idx < 0 {
		return nil, fmt.Errorf("image: malformed data URL")
	}
	meta, payload := u[5:idx], u[idx+1:]
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	return []byte(payload), nil
}
