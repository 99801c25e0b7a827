// Package moderation screens user-submitted text through an external content check.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Verdict struct {
	Flagged bool     `json:"flagged"`
	Reasons []string `json:"reasons,omitempty"`
}

// Gate is the external content-screening check.
type Gate interface {
	Check(ctx context.Context, text string) (Verdict, error)
}

// AllowAll approves everything. Used when no moderation service is configured.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string) (Verdict, error) {
	return Verdict{}, nil
}

// HTTPGate calls the moderation service's check endpoint.
type HTTPGate struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPGate(baseURL string, log *zap.Logger) *HTTPGate {
	return &HTTPGate{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// New returns an HTTPGate for baseURL, or AllowAll when baseURL is empty.
func New(baseURL string, log *zap.Logger) Gate {
	if baseURL == "" {
		log.Warn("MODERATION_URL not set, content screening disabled")
		return AllowAll{}
	}
	return NewHTTPGate(baseURL, log)
}

type checkRequest struct {
	Text string `json:"text"`
}

func (g *HTTPGate) Check(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(checkRequest{Text: text})
	if err != nil {
		return Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/check", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Verdict{}, fmt.Errorf("moderation service returned %d: %s", resp.StatusCode, string(msg))
	}

	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("decode moderation verdict: %w", err)
	}
	if v.Flagged {
		g.log.Info("content flagged", zap.Strings("reasons", v.Reasons))
	}
	return v, nil
}
