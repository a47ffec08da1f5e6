package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"gigbounty-backend/core/escrow"
)

func TestStaticScorer(t *testing.T) {
	t.Run("Default passes", func(t *testing.T) {
		scorer := NewStaticScorer()
		result, err := scorer.Score(context.Background(), &escrow.Task{}, "proof", "")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if result.Score != 0.85 {
			t.Errorf("Expected score 0.85 but got %v", result.Score)
		}
		if result.Verdict != "PASS" {
			t.Errorf("Expected verdict PASS but got %s", result.Verdict)
		}
	})

	t.Run("Low fixed score fails", func(t *testing.T) {
		scorer := &StaticScorer{FixedScore: 0.4}
		result, _ := scorer.Score(context.Background(), &escrow.Task{}, "proof", "")
		if result.Verdict != "FAIL" {
			t.Errorf("Expected verdict FAIL but got %s", result.Verdict)
		}
	})
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		want    float64
		wantErr bool
	}{
		{"bare number", "0.85", 0.85, false},
		{"number in sentence", "I would rate this proof 0.7 overall.", 0.7, false},
		{"trailing punctuation", "Score: 0.92.", 0.92, false},
		{"clamped high", "1.5", 1.0, false},
		{"clamped low", "-0.3", 0.0, false},
		{"no number", "looks good to me", 0, true},
		{"empty", "", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseScore(tc.text)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q but got score %v", tc.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected score %v but got %v", tc.want, got)
			}
		})
	}
}

func TestGeminiScorerRequiresKey(t *testing.T) {
	os.Unsetenv("GIGBOUNTY_GEMINI_KEY")
	if scorer := NewGeminiScorer(); scorer != nil {
		t.Error("Expected nil scorer without an API key")
	}
}

func TestGeminiScorerScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST but got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"0.9"}]}}]}`))
	}))
	defer server.Close()

	os.Setenv("GIGBOUNTY_GEMINI_KEY", "test-key")
	os.Setenv("GIGBOUNTY_GEMINI_BASE", server.URL)
	defer os.Unsetenv("GIGBOUNTY_GEMINI_KEY")
	defer os.Unsetenv("GIGBOUNTY_GEMINI_BASE")

	scorer := NewGeminiScorer()
	if scorer == nil {
		t.Fatal("Expected a scorer with the key set")
	}

	task := &escrow.Task{Title: "Translate page", Description: "Translate to Spanish"}
	result, err := scorer.Score(context.Background(), task, "done, see link", "https://example.com")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Score != 0.9 {
		t.Errorf("Expected score 0.9 but got %v", result.Score)
	}
	if result.Verdict != "PASS" {
		t.Errorf("Expected verdict PASS but got %s", result.Verdict)
	}
}

func TestQRCodeService(t *testing.T) {
	svc := NewQRCodeService()

	data, err := svc.GenerateQRCode("ESCROWADDRESS123", "10.5")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Expected PNG bytes")
	}
	// PNG magic header.
	if data[0] != 0x89 || string(data[1:4]) != "PNG" {
		t.Error("Expected a PNG image")
	}

	if _, err := svc.GenerateQRCode("", ""); err == nil {
		t.Error("Expected error for empty address")
	}
}
