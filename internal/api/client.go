// Package api is the typed facade over the console server's HTTP surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"adconsole/internal/sse"
)

type Config struct {
	BaseURL        string
	AuthToken      string
	HTTPClient     *http.Client
	UnaryTimeout   time.Duration
	RateLimitHints []string
	Logger         zerolog.Logger
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.HTTPClient == nil {
		// No client-level timeout: streaming responses stay open for minutes.
		// Unary calls bound themselves with UnaryTimeout.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.UnaryTimeout <= 0 {
		cfg.UnaryTimeout = 30 * time.Second
	}
	if len(cfg.RateLimitHints) == 0 {
		cfg.RateLimitHints = []string{"too many calls", "rate"}
	}
	return &Client{cfg: cfg}
}

// StreamHandlers receive the lifecycle of one execute stream. Exactly one of
// OnDone or OnError fires, after all OnChunk calls.
type StreamHandlers struct {
	OnStart func()
	OnChunk func(text string)
	OnDone  func(ExecuteResult)
	OnError func(err error)
}

// ImportHandlers receive per-item and periodic progress events of an import
// stream.
type ImportHandlers struct {
	OnItem     func(item MediaItem)
	OnProgress func(p ImportProgress)
}

func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var out []Prompt
	if err := c.doJSON(ctx, http.MethodGet, "/prompts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPrompt(ctx context.Context, id int64) (Prompt, error) {
	var out Prompt
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/prompts/%d", id), nil, nil, &out); err != nil {
		return Prompt{}, err
	}
	return out, nil
}

func (c *Client) CreatePrompt(ctx context.Context, p Prompt) (Prompt, error) {
	var out Prompt
	if err := c.doJSON(ctx, http.MethodPost, "/prompts", nil, p, &out); err != nil {
		return Prompt{}, err
	}
	return out, nil
}

func (c *Client) UpdatePrompt(ctx context.Context, id int64, p Prompt) (Prompt, error) {
	var out Prompt
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/prompts/%d", id), nil, p, &out); err != nil {
		return Prompt{}, err
	}
	return out, nil
}

func (c *Client) DeletePrompt(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/prompts/%d", id), nil, nil, nil)
}

// ListAllActions returns every action the server authorizes for this
// operator. Order is unspecified; callers sort.
func (c *Client) ListAllActions(ctx context.Context) ([]PromptAction, error) {
	var out []PromptAction
	if err := c.doJSON(ctx, http.MethodGet, "/actions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteAction(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/actions/%d", id), nil, nil, nil)
}

// Execute runs a prompt without streaming. Used when a caller cannot consume
// a stream; the server responds with the persisted action.
func (c *Client) Execute(ctx context.Context, promptID int64, userMessage string) (PromptAction, error) {
	var out PromptAction
	body := map[string]string{"user_message": userMessage}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/prompts/%d/execute", promptID), nil, body, &out); err != nil {
		return PromptAction{}, err
	}
	return out, nil
}

// ExecuteStream opens a streaming execution. Cancellation goes through ctx.
// The returned error mirrors what OnError received, nil after OnDone.
func (c *Client) ExecuteStream(ctx context.Context, promptID int64, userMessage string, h StreamHandlers) error {
	body := map[string]string{"user_message": userMessage}
	rc, err := c.openStream(ctx, fmt.Sprintf("/prompts/%d/execute/stream", promptID), nil, body)
	if err != nil {
		if h.OnError != nil {
			h.OnError(err)
		}
		return err
	}
	defer rc.Close()

	r := sse.NewReader(rc, c.cfg.Logger)
	for {
		f, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			werr := c.transportError(ctx, err)
			if h.OnError != nil {
				h.OnError(werr)
			}
			return werr
		}

		switch f.Type {
		case sse.FrameStart:
			if h.OnStart != nil {
				h.OnStart()
			}
		case sse.FrameChunk:
			if h.OnChunk != nil {
				h.OnChunk(f.Text)
			}
		case sse.FrameResult:
			var res ExecuteResult
			if err := json.Unmarshal(f.Data, &res); err != nil {
				c.cfg.Logger.Warn().Err(err).Msg("undecodable execute result frame")
			}
			if h.OnDone != nil {
				h.OnDone(res)
			}
			return nil
		case sse.FrameError:
			werr := c.messageError(f.Message)
			if h.OnError != nil {
				h.OnError(werr)
			}
			return werr
		}
	}
}

// StartImportJob asks the server to scrape sourceURL into clientID's library.
// maxScrolls <= 0 leaves the server default.
func (c *Client) StartImportJob(ctx context.Context, clientID, sourceURL string, maxScrolls int) (ImportJob, error) {
	form := url.Values{"url": {sourceURL}}
	if maxScrolls > 0 {
		form.Set("max_scrolls", strconv.Itoa(maxScrolls))
	}
	query := url.Values{"client_id": {clientID}}

	var out ImportJob
	if err := c.doForm(ctx, "/meta-ads-library/import", query, form, &out); err != nil {
		return ImportJob{}, err
	}
	return out, nil
}

func (c *Client) GetImportJobStatus(ctx context.Context, jobID string) (ImportJobStatus, error) {
	var out ImportJobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/meta-ads-library/jobs/"+url.PathEscape(jobID), nil, nil, &out); err != nil {
		return ImportJobStatus{}, err
	}
	return out, nil
}

// GetImportJobImages returns everything the job has imported so far. A zero
// since returns the full list.
func (c *Client) GetImportJobImages(ctx context.Context, jobID string, since time.Time) ([]MediaItem, error) {
	var query url.Values
	if !since.IsZero() {
		query = url.Values{"since": {since.UTC().Format(time.RFC3339)}}
	}
	var out []MediaItem
	if err := c.doJSON(ctx, http.MethodGet, "/meta-ads-library/jobs/"+url.PathEscape(jobID)+"/images", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportMediaStream imports a client-selected set item by item.
func (c *Client) ImportMediaStream(ctx context.Context, clientID string, items []MediaItem, h ImportHandlers, adAccountID string) (ImportResult, error) {
	body := map[string]any{
		"client_id": clientID,
		"items":     items,
	}
	if adAccountID != "" {
		body["ad_account_id"] = adAccountID
	}
	return c.importStream(ctx, "/meta/import-media-stream", body, h)
}

// ImportAllMediaStream lets the server list and import everything of
// mediaType ("image" or "video").
func (c *Client) ImportAllMediaStream(ctx context.Context, clientID, mediaType string, h ImportHandlers, adAccountID string) (ImportResult, error) {
	body := map[string]any{
		"client_id":  clientID,
		"media_type": mediaType,
	}
	if adAccountID != "" {
		body["ad_account_id"] = adAccountID
	}
	return c.importStream(ctx, "/meta/import-all-stream", body, h)
}

// Import streams carry items inside chunk frames as an "image" field; the
// terminal result frame holds the full item list and failure count.
func (c *Client) importStream(ctx context.Context, path string, body any, h ImportHandlers) (ImportResult, error) {
	rc, err := c.openStream(ctx, path, nil, body)
	if err != nil {
		return ImportResult{}, err
	}
	defer rc.Close()

	r := sse.NewReader(rc, c.cfg.Logger)
	for {
		f, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ImportResult{}, nil
			}
			return ImportResult{}, c.transportError(ctx, err)
		}

		switch f.Type {
		case sse.FrameChunk:
			var payload struct {
				Image *MediaItem `json:"image"`
			}
			if err := json.Unmarshal(f.Data, &payload); err != nil || payload.Image == nil {
				c.cfg.Logger.Warn().Msg("import chunk frame without image payload")
				continue
			}
			if h.OnItem != nil {
				h.OnItem(*payload.Image)
			}
		case sse.FrameProgress:
			var p ImportProgress
			if err := json.Unmarshal(f.Data, &p); err != nil {
				continue
			}
			if h.OnProgress != nil {
				h.OnProgress(p)
			}
		case sse.FrameResult:
			var res ImportResult
			if err := json.Unmarshal(f.Data, &res); err != nil {
				c.cfg.Logger.Warn().Err(err).Msg("undecodable import result frame")
			}
			return res, nil
		case sse.FrameError:
			return ImportResult{}, c.messageError(f.Message)
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UnaryTimeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return c.transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp.StatusCode, errorMessage(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindTransient, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Client) doForm(ctx context.Context, path string, query, form url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UnaryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, query), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return c.transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp.StatusCode, errorMessage(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindTransient, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Client) openStream(ctx context.Context, path string, query url.Values, body any) (io.ReadCloser, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, query), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		return nil, c.statusError(resp.StatusCode, errorMessage(respBody))
	}
	return resp.Body, nil
}

func (c *Client) authorize(req *http.Request) {
	if strings.TrimSpace(c.cfg.AuthToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// errorMessage pulls a human-readable message out of an error body. The
// server uses {"detail": ...}; fall back to {"message": ...} or raw text.
func errorMessage(body []byte) string {
	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Detail != "" {
			return parsed.Detail
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(body))
}
