package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorGreen  = 0x2ECC71
)

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp"`
	Footer      *footer `json:"footer,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type footer struct {
	Text string `json:"text"`
}

type payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

// Notifier posts operator alerts to a Discord webhook. Each category is
// rate limited by its own cooldown. A Notifier without a webhook URL does
// nothing.
type Notifier struct {
	webhookURL string
	pingUserID string
	version    string
	client     *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	cooldowns map[string]time.Time
	wg        sync.WaitGroup
}

func NewNotifier(webhookURL, pingUserID, version string, client *http.Client, logger *zap.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		pingUserID: pingUserID,
		version:    version,
		client:     client,
		logger:     logger.Named("alerts"),
		cooldowns:  make(map[string]time.Time),
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

func (n *Notifier) send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields ...field) {
	if !n.Enabled() {
		return
	}

	n.mu.Lock()
	now := time.Now()
	if cooldown > 0 {
		if last, ok := n.cooldowns[category]; ok && now.Sub(last) < cooldown {
			n.mu.Unlock()
			return
		}
	}
	n.cooldowns[category] = now
	n.mu.Unlock()

	var embedFields []field
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		f.Value = truncate(f.Value, 1024)
		f.Inline = true
		embedFields = append(embedFields, f)
	}

	p := payload{
		Embeds: []embed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      embedFields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &footer{Text: "chocbot " + n.version},
		}},
	}
	if ping && n.pingUserID != "" {
		p.Content = fmt.Sprintf("<@%s>", n.pingUserID)
	}

	body, err := json.Marshal(p)
	if err != nil {
		n.logger.Error("encode alert", zap.Error(err))
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			n.logger.Warn("send failed", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.Warn("send failed", zap.String("category", category), zap.Error(err))
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			n.logger.Warn("webhook rejected alert", zap.String("category", category), zap.Int("status", resp.StatusCode))
		}
	}()
}

// Wait blocks until alerts already handed off have been sent.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func (n *Notifier) BotStarted(user string) {
	if !n.Enabled() {
		return
	}
	n.send("bot-start", 0, false, colorGreen, "Bot Started", fmt.Sprintf("chocbot %s logged in as %s", n.version, user))
}

func (n *Notifier) BotStopping() {
	n.send("bot-stop", 0, false, colorOrange, "Bot Stopping", "chocbot is shutting down")
}

func (n *Notifier) DownloadFailed(owner, url string, err error) {
	n.send("download", 5*time.Second, true, colorRed, "Download Failed", err.Error(),
		field{Name: "User", Value: owner},
		field{Name: "URL", Value: truncate(url, 200)},
		field{Name: "Error", Value: truncate(err.Error(), 500)},
	)
}

func (n *Notifier) ConversionFailed(owner, format string, err error) {
	n.send("conversion", 5*time.Second, true, colorRed, "Conversion Failed", err.Error(),
		field{Name: "User", Value: owner},
		field{Name: "Format", Value: format},
		field{Name: "Error", Value: truncate(err.Error(), 500)},
	)
}

func (n *Notifier) CookieIssue(details string) {
	n.send("cookie", 60*time.Second, true, colorOrange, "Cookie Issue", details)
}

func (n *Notifier) CobaltAllFailed(url string, err error) {
	n.send("cobalt", 10*time.Second, false, colorOrange, "Cobalt All Instances Failed", err.Error(),
		field{Name: "URL", Value: truncate(url, 200)},
		field{Name: "Error", Value: truncate(err.Error(), 500)},
	)
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
