// Package report produces the executive project audit: a narrative summary
// of the current task portfolio generated by the Gemini API.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bpdcentral/internal/config"
	"bpdcentral/internal/domain"
)

// Fallback is returned whenever generation fails for any reason. The audit is
// an enhancement layer: a missing key, a network fault or a malformed reply
// must never break the dashboard.
const Fallback = "The project intelligence stream is temporarily unavailable. Please retry the audit shortly."

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"

	systemInstruction = "You are a COO reviewing a federal program management dashboard. " +
		"Provide a concise, professional executive summary of project health. " +
		"Highlight schedule risks, blocked work and notable wins. Keep it under 200 words."
)

// Auditor calls the Gemini generateContent endpoint. The zero value is not
// usable; construct with New.
type Auditor struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

// New builds an auditor with the API key resolved from the environment
// (API_KEY or GEMINI_API_KEY, with the usual prefix variants).
func New() *Auditor {
	key := config.LookupEnv("API_KEY")
	if key == "" {
		key = config.LookupEnv("GEMINI_API_KEY")
	}
	return &Auditor{
		BaseURL:    defaultBaseURL,
		Model:      defaultModel,
		APIKey:     key,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Audit returns the narrative summary for the given tasks, or Fallback. It
// never returns an error.
func (a *Auditor) Audit(ctx context.Context, tasks []domain.Task) string {
	if a.APIKey == "" {
		return Fallback
	}
	text, err := a.generate(ctx, auditPrompt(tasks))
	if err != nil || strings.TrimSpace(text) == "" {
		return Fallback
	}
	return strings.TrimSpace(text)
}

// auditPrompt condenses the portfolio to the fields the summary needs.
func auditPrompt(tasks []domain.Task) string {
	var b strings.Builder
	b.WriteString("Analyze the current project portfolio and summarize overall health.\n\nTasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s | status=%s | progress=%d%% | due=%s | owner=%s\n",
			t.Name, t.Status, t.Progress, t.PlannedEndDate, t.AssignedTo)
	}
	return b.String()
}

// Wire shapes for generateContent, reduced to the fields we use.

type generateRequest struct {
	Contents          []content      `json:"contents"`
	SystemInstruction *content       `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (a *Auditor) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents:          []content{{Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(a.BaseURL, "/"), a.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.APIKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate: status %d", resp.StatusCode)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generate: empty response")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
