package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/retry"
)

// CobaltRequest is the body posted to a Cobalt instance.
type CobaltRequest struct {
	URL           string `json:"url"`
	DownloadMode  string `json:"downloadMode"`
	FilenameStyle string `json:"filenameStyle"`
	VideoQuality  string `json:"videoQuality,omitempty"`
}

type CobaltPickerItem struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Thumb string `json:"thumb"`
}

// CobaltResponse covers the tunnel, redirect, picker and error shapes.
type CobaltResponse struct {
	Status   string             `json:"status"`
	URL      string             `json:"url"`
	Filename string             `json:"filename"`
	Picker   []CobaltPickerItem `json:"picker"`
	Error    *struct {
		Code string `json:"code"`
	} `json:"error"`

	Instance string `json:"-"`
}

// StreamURL returns the direct media URL of a tunnel or redirect response,
// or the first video of a picker.
func (r *CobaltResponse) StreamURL() string {
	switch r.Status {
	case "tunnel", "redirect":
		return r.URL
	case "picker":
		for _, item := range r.Picker {
			if item.Type == "" || item.Type == "video" || item.Type == "gif" {
				return item.URL
			}
		}
	}
	return ""
}

// Title is the filename without its extension.
func (r *CobaltResponse) Title() string {
	name := r.Filename
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (r *CobaltResponse) Ext() string {
	return strings.TrimPrefix(filepath.Ext(r.Filename), ".")
}

// Cobalt resolves media URLs through a list of Cobalt instances, trying
// each in order.
type Cobalt struct {
	instances []string
	apiKey    string
	client    *http.Client
	policy    retry.Policy
	logger    *zap.Logger

	// OnExhausted, when set, is called once per Resolve that ends with every
	// instance failing.
	OnExhausted func(rawURL string, err error)
}

func NewCobalt(instances []string, apiKey string, client *http.Client, logger *zap.Logger) *Cobalt {
	return &Cobalt{
		instances: instances,
		apiKey:    apiKey,
		client:    client,
		policy:    retry.Default().WithPredicate(Retryable),
		logger:    logger.Named("cobalt"),
	}
}

func (c *Cobalt) headers() map[string]string {
	h := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if c.apiKey != "" {
		h["Authorization"] = "Api-Key " + c.apiKey
	}
	return h
}

func (c *Cobalt) post(ctx context.Context, apiURL string, body CobaltRequest) (*CobaltResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var data CobaltResponse
	jsonErr := json.Unmarshal(respBody, &data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if jsonErr == nil && data.Error != nil && data.Error.Code != "" {
			return nil, fmt.Errorf("%s", data.Error.Code)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("invalid JSON response")
	}
	if data.Status == "error" {
		if data.Error != nil && data.Error.Code != "" {
			return nil, fmt.Errorf("%s", data.Error.Code)
		}
		return nil, fmt.Errorf("Cobalt error")
	}
	return &data, nil
}

// Resolve asks each instance in turn until one returns a usable response.
// A deterministic failure such as an unsupported link stops the search early.
func (c *Cobalt) Resolve(ctx context.Context, body CobaltRequest) (*CobaltResponse, error) {
	if body.DownloadMode == "" {
		body.DownloadMode = "auto"
	}
	if body.FilenameStyle == "" {
		body.FilenameStyle = "basic"
	}

	data, err := retry.Do(ctx, c.policy, func(ctx context.Context) (*CobaltResponse, error) {
		return c.resolveOnce(ctx, body)
	})
	if err != nil && ctx.Err() == nil && !Deterministic(err) && c.OnExhausted != nil {
		c.OnExhausted(body.URL, err)
	}
	return data, err
}

func (c *Cobalt) resolveOnce(ctx context.Context, body CobaltRequest) (*CobaltResponse, error) {
	var lastErr error
	for _, apiURL := range c.instances {
		c.logger.Debug("resolving", zap.String("instance", apiURL), zap.String("url", body.URL))

		data, err := c.post(ctx, apiURL, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("instance failed", zap.String("instance", apiURL), zap.Error(err))
			lastErr = classified("cobalt", err)
			if Deterministic(lastErr) {
				return nil, lastErr
			}
			continue
		}

		if data.Status == "picker" || data.StreamURL() != "" {
			data.Instance = apiURL
			c.logger.Debug("resolved", zap.String("instance", apiURL), zap.String("status", data.Status))
			return data, nil
		}
		lastErr = newError(KindUpstream, "cobalt", "No download URL in response")
	}

	if lastErr == nil {
		lastErr = newError(KindUpstream, "cobalt", "All Cobalt instances failed")
	}
	return nil, lastErr
}
