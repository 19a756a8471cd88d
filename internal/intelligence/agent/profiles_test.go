package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProfilesMissingFile(t *testing.T) {
	profiles, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if profiles.Default.Model == "" {
		t.Fatal("expected default model")
	}
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `default:
  model: gemini-2.0-flash
  temperature: 0.3
phases:
  deal:
    model: gemini-2.5-pro
  narrative:
    temperature: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	deal := profiles.For(PhaseDeal)
	if deal.Model != "gemini-2.5-pro" {
		t.Errorf("deal model = %q", deal.Model)
	}
	if deal.Temperature == nil || *deal.Temperature != 0.3 {
		t.Error("deal should inherit default temperature")
	}

	narrative := profiles.For(PhaseNarrative)
	if narrative.Model != "gemini-2.0-flash" {
		t.Errorf("narrative model = %q", narrative.Model)
	}
	if narrative.Temperature == nil || *narrative.Temperature != 0.7 {
		t.Error("narrative temperature override lost")
	}

	if got := profiles.For(PhaseSummary); got.Model != "gemini-2.0-flash" {
		t.Errorf("summary falls back to default, got %q", got.Model)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
