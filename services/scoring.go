package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gigbounty-backend/core/escrow"
)

// passThreshold is the minimum score for a PASS verdict.
const passThreshold = 0.7

// StaticScorer returns a fixed score without external calls. Used when
// no scoring API key is configured.
type StaticScorer struct {
	FixedScore float64
}

// NewStaticScorer returns a scorer that always passes with 0.85.
func NewStaticScorer() *StaticScorer {
	return &StaticScorer{FixedScore: 0.85}
}

// Score returns the fixed score with the matching verdict.
func (s *StaticScorer) Score(_ context.Context, _ *escrow.Task, _, _ string) (*escrow.ScoreResult, error) {
	verdict := "FAIL"
	if s.FixedScore >= passThreshold {
		verdict = "PASS"
	}
	return &escrow.ScoreResult{
		Score:   s.FixedScore,
		Verdict: verdict,
		Detail:  "static scoring, no model configured",
	}, nil
}

// GeminiScorer scores proofs with the Gemini REST API.
type GeminiScorer struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewGeminiScorer builds a scorer using GIGBOUNTY_GEMINI_KEY. Returns
// nil when no key is configured so callers can fall back.
func NewGeminiScorer() *GeminiScorer {
	key := os.Getenv("GIGBOUNTY_GEMINI_KEY")
	if key == "" {
		return nil
	}
	base := os.Getenv("GIGBOUNTY_GEMINI_BASE")
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := os.Getenv("GIGBOUNTY_GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiScorer{
		apiKey:  key,
		baseURL: base,
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Score asks the model to rate the proof against the task description
// on a 0.0-1.0 scale and maps the score to a verdict.
func (s *GeminiScorer) Score(ctx context.Context, task *escrow.Task, proofText, proofURL string) (*escrow.ScoreResult, error) {
	prompt := fmt.Sprintf(`You are reviewing a completed micro-task.

Task title: %s
Task description: %s

Submitted proof text: %s
Submitted proof url: %s

Rate how convincingly the proof demonstrates the task was completed.
Respond with a single number between 0.0 and 1.0 and nothing else.`,
		task.Title, task.Description, proofText, proofURL)

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode scoring request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.baseURL, s.model, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("scoring request: status %d: %s", resp.StatusCode, string(msg))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode scoring response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("scoring response contained no candidates")
	}

	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	score, err := parseScore(text)
	if err != nil {
		return nil, err
	}

	verdict := "FAIL"
	if score >= passThreshold {
		verdict = "PASS"
	}
	return &escrow.ScoreResult{Score: score, Verdict: verdict, Detail: text}, nil
}

// parseScore extracts the first float in the model's reply and clamps
// it to [0, 1].
func parseScore(text string) (float64, error) {
	for _, field := range strings.Fields(text) {
		cleaned := strings.Trim(field, ",.;:()[]")
		v, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, nil
	}
	return 0, fmt.Errorf("no score found in model reply %q", text)
}
