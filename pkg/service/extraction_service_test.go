package service

import (
	"testing"
)

func newTestExtractionService() *SignalExtractionService {
	return NewSignalExtractionService(nil, DefaultExtractionConfig())
}

func TestParseExtractedSignals(t *testing.T) {
	s := newTestExtractionService()

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{
			name:    "plain array",
			content: `[{"type": "pain_point", "value": "slow weekdays", "confidence": 0.9, "context": "we barely see anyone Tuesday"}]`,
			want:    1,
		},
		{
			name:    "json code fence",
			content: "```json\n[{\"type\": \"urgency\", \"value\": \"needs campaign before summer\"}]\n```",
			want:    1,
		},
		{
			name:    "surrounding prose",
			content: `Here are the signals I found: [{"type": "budget_hint", "value": "$500/month"}] Let me know if you need more.`,
			want:    1,
		},
		{
			name:    "invalid json",
			content: `not json at all`,
			want:    0,
		},
		{
			name:    "empty array",
			content: `[]`,
			want:    0,
		},
		{
			name:    "missing value dropped",
			content: `[{"type": "pain_point", "value": ""}, {"type": "pain_point", "value": "kept"}]`,
			want:    1,
		},
		{
			name:    "missing type dropped",
			content: `[{"value": "orphan"}]`,
			want:    0,
		},
		{
			name:    "unknown type dropped",
			content: `[{"type": "horoscope", "value": "aries"}, {"type": "location_mention", "value": "Nanuet"}]`,
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.parseExtractedSignals(tt.content)
			if len(got) != tt.want {
				t.Errorf("parseExtractedSignals() returned %d items, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseExtractedSignals_CapsBatch(t *testing.T) {
	s := NewSignalExtractionService(nil, &ExtractionConfig{
		Enabled:            true,
		MaxSignalsPerBatch: 2,
		DefaultConfidence:  0.85,
	})

	content := `[
		{"type": "pain_point", "value": "a"},
		{"type": "pain_point", "value": "b"},
		{"type": "pain_point", "value": "c"}
	]`
	got := s.parseExtractedSignals(content)
	if len(got) != 2 {
		t.Errorf("expected batch capped at 2, got %d", len(got))
	}
}

func TestConfidenceFor(t *testing.T) {
	s := newTestExtractionService()

	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		item extractedSignalItem
		want float64
	}{
		{"omitted uses default", extractedSignalItem{}, 0.85},
		{"in range kept", extractedSignalItem{Confidence: f(0.42)}, 0.42},
		{"zero kept", extractedSignalItem{Confidence: f(0)}, 0},
		{"negative clamped", extractedSignalItem{Confidence: f(-0.3)}, 0},
		{"above one clamped", extractedSignalItem{Confidence: f(1.7)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.confidenceFor(tt.item); got != tt.want {
				t.Errorf("confidenceFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
