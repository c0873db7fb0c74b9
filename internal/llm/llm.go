// Package llm implements the messages-API client used for every analysis
// call. The wire shape is Anthropic's: role-typed messages, a thinking
// budget, and content blocks in the response.
//
// Two transport modes exist. Direct mode sends the native x-api-key header
// to the canonical endpoint. Proxy mode sends a bearer token to a
// user-supplied endpoint and passes the request shape through unchanged;
// the client never appends /v1 on its own.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"dailybrief/internal/config"
	"dailybrief/internal/cost"
	"dailybrief/internal/limiter"
)

const anthropicVersion = "2023-06-01"

// Budget is a named reasoning-token ceiling.
type Budget int

const (
	BudgetQuick Budget = iota
	BudgetStandard
	BudgetDeep
	BudgetUltra
)

// Tokens returns the provider-side reasoning budget for b.
func (b Budget) Tokens() int {
	switch b {
	case BudgetQuick:
		return 4096
	case BudgetStandard:
		return 8192
	case BudgetDeep:
		return 16000
	case BudgetUltra:
		return 32000
	}
	return 0
}

func (b Budget) String() string {
	switch b {
	case BudgetQuick:
		return "quick"
	case BudgetStandard:
		return "standard"
	case BudgetDeep:
		return "deep"
	case BudgetUltra:
		return "ultra"
	}
	return "unknown"
}

// Response is one completed generation.
type Response struct {
	Text            string
	ReasoningBlocks []string
	Usage           cost.Usage
}

// ReasoningUnavailableError is raised when a call requested a reasoning
// budget but the response carried zero thinking blocks. This is fatal by
// contract: the briefing quality depends on extended reasoning, and there
// is no silent fallback to a non-reasoning model.
type ReasoningUnavailableError struct {
	Mode config.LLMMode
}

func (e *ReasoningUnavailableError) Error() string {
	switch e.Mode {
	case config.LLMModeProxy:
		return "reasoning unavailable: the proxy stripped thinking blocks from the response; " +
			"point llm.base_url at a passthrough path that preserves extended thinking"
	default:
		return "reasoning unavailable: the model returned no thinking blocks; " +
			"verify the configured model supports extended thinking"
	}
}

// IsReasoningUnavailable reports whether err carries the fatal
// reasoning-loss condition. Callers that otherwise degrade on model
// failure check this first and abort instead.
func IsReasoningUnavailable(err error) bool {
	var ru *ReasoningUnavailableError
	return errors.As(err, &ru)
}

// request/response wire types for the messages API.

type messagesRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []message       `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   usageRecord    `json:"usage"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type     string `json:"type"` // "text", "thinking", "redacted_thinking"
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type usageRecord struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client talks to the messages API. It holds no cross-call state beyond
// the shared cost ledger.
type Client struct {
	cfg    config.LLM
	http   *limiter.Client
	ledger *cost.Ledger
}

// NewClient builds a Client from validated configuration.
func NewClient(cfg config.LLM, hc *limiter.Client, ledger *cost.Ledger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key required")
	}
	if cfg.Mode == config.LLMModeDirect && cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultLLMBaseURL
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("llm: base url required")
	}
	return &Client{cfg: cfg, http: hc, ledger: ledger}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate issues one reasoning call and records its usage under the given
// phase name. Temperature is pinned to 1.0 whenever thinking is enabled,
// as the API requires.
func (c *Client) Generate(ctx context.Context, phase, system, user string, budget Budget) (*Response, error) {
	req := messagesRequest{
		Model:     c.cfg.Model,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
		MaxTokens: budget.Tokens() + 8192, // max_tokens must exceed the thinking budget
	}
	if budget.Tokens() > 0 {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget.Tokens()}
		req.Temperature = 1.0
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "thinking":
			out.ReasoningBlocks = append(out.ReasoningBlocks, block.Thinking)
		case "redacted_thinking":
			out.ReasoningBlocks = append(out.ReasoningBlocks, "")
		}
	}

	out.Usage = cost.Usage{
		InputTokens:     resp.Usage.InputTokens,
		OutputTokens:    resp.Usage.OutputTokens,
		ReasoningTokens: resp.Usage.ReasoningTokens,
	}
	// Proxies and older gateways omit the reasoning count; approximate it
	// from the thinking text so the ledger never undercounts to zero.
	if out.Usage.ReasoningTokens == 0 && len(out.ReasoningBlocks) > 0 {
		for _, b := range out.ReasoningBlocks {
			out.Usage.ReasoningTokens += len(b) / 4
		}
		if out.Usage.ReasoningTokens == 0 {
			out.Usage.ReasoningTokens = 1
		}
	}

	if budget.Tokens() > 0 && len(out.ReasoningBlocks) == 0 {
		return nil, &ReasoningUnavailableError{Mode: c.cfg.Mode}
	}

	if c.ledger != nil {
		c.ledger.Record(phase, out.Usage)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, req messagesRequest) (*messagesResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	switch c.cfg.Mode {
	case config.LLMModeProxy:
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	default:
		httpReq.Header.Set("x-api-key", c.cfg.APIKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
	}

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: reading response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("llm: api error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	return &parsed, nil
}

// endpoint joins the base URL with the messages path. Proxy base URLs are
// used exactly as configured; validation already rejected trailing /v1.
func (c *Client) endpoint() string {
	base := c.cfg.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/v1/messages"
}
