// Signal extraction service: turns chat transcripts into typed signals
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/models"
	"github.com/localpulse/localpulse/pkg/utils"
)

// ExtractionConfig holds configuration for signal extraction
type ExtractionConfig struct {
	Enabled             bool    `yaml:"enabled"`               // Enable signal extraction
	MaxTurns            int     `yaml:"max_turns"`             // Bound on the conversation window sent to the model
	MinTranscriptLength int     `yaml:"min_transcript_length"` // Minimum transcript length to trigger extraction
	MaxSignalsPerBatch  int     `yaml:"max_signals_per_batch"` // Max signals to accept per extraction round
	DefaultConfidence   float64 `yaml:"default_confidence"`    // Confidence assigned when the model omits one
}

// DefaultExtractionConfig returns default configuration
func DefaultExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{
		Enabled:             true,
		MaxTurns:            20,
		MinTranscriptLength: 40,
		MaxSignalsPerBatch:  10,
		DefaultConfidence:   0.85,
	}
}

// SignalExtractionService asks the extraction model to identify typed,
// confidence-scored signals in a conversation transcript. It does not
// persist anything; persistence belongs to the signal store.
type SignalExtractionService struct {
	modelService *ModelService
	config       *ExtractionConfig
	logger       *slog.Logger
}

// NewSignalExtractionService creates a new signal extraction service
func NewSignalExtractionService(modelService *ModelService, config *ExtractionConfig) *SignalExtractionService {
	if config == nil {
		config = DefaultExtractionConfig()
	}
	return &SignalExtractionService{
		modelService: modelService,
		config:       config,
		logger:       utils.GetLogger(),
	}
}

// extractedSignalItem is one candidate signal as returned by the model.
// Confidence is a pointer so an omitted value can be told apart from 0.
type extractedSignalItem struct {
	Type       string   `json:"type"`
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence"`
	Context    string   `json:"context"`
}

// ExtractFromTurns analyzes a window of conversation turns and returns the
// signals found in them. Model/transport errors are returned to the caller
// (who retries on the next batch); a malformed model response degrades to an
// empty result and is only logged.
func (s *SignalExtractionService) ExtractFromTurns(ctx context.Context, userID, sessionID string, turns []db.ConversationTurn, modelID string) ([]db.Signal, error) {
	if !s.config.Enabled || len(turns) == 0 {
		return nil, nil
	}

	// Bound the conversation window
	if s.config.MaxTurns > 0 && len(turns) > s.config.MaxTurns {
		turns = turns[len(turns)-s.config.MaxTurns:]
	}

	// Build transcript text for analysis
	var transcript strings.Builder
	for _, turn := range turns {
		transcript.WriteString(fmt.Sprintf("[%s]: %s\n\n", turn.Role, turn.Text))
	}

	if transcript.Len() < s.config.MinTranscriptLength {
		return nil, nil
	}

	chatModel, err := s.getChatModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	resp, err := chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(s.buildPrompt(transcript.String())),
	})
	if err != nil {
		return nil, fmt.Errorf("signal extraction generation failed: %w", err)
	}

	items := s.parseExtractedSignals(resp.Content)

	now := time.Now()
	signals := make([]db.Signal, 0, len(items))
	for _, item := range items {
		signals = append(signals, db.Signal{
			ID:          uuid.New().String(),
			UserID:      userID,
			SessionID:   sessionID,
			Type:        db.SignalType(item.Type),
			Value:       item.Value,
			Confidence:  s.confidenceFor(item),
			Context:     item.Context,
			ExtractedAt: now,
		})
	}

	s.logger.Info("Signal extraction completed",
		"userID", userID,
		"sessionID", sessionID,
		"extractedCount", len(signals))

	return signals, nil
}

// buildPrompt renders the structured-output instruction for the model.
func (s *SignalExtractionService) buildPrompt(transcript string) string {
	return fmt.Sprintf(`Analyze the following conversation between a local business owner and a marketing assistant. Extract marketing signals.

For each signal, provide:
- type: one of "pain_point", "service_interest", "location_mention", "budget_hint", "competitor_mention", "seasonal_pattern", "urgency"
- value: the concrete fact (concise free text)
- confidence: 0.0-1.0 (how certain the signal is)
- context: a short excerpt from the conversation supporting it

Output a JSON array of objects. Only include signals the conversation actually supports. If nothing significant, return empty array [].

Maximum %d items.

Conversation:
%s

Output JSON array only:`, s.config.MaxSignalsPerBatch, transcript)
}

// parseExtractedSignals defensively parses the model response into valid
// candidate items. The response is untrusted: code fences and surrounding
// prose are stripped, invalid JSON yields an empty result, and candidates
// missing a type or value (or carrying an unknown type) are dropped.
func (s *SignalExtractionService) parseExtractedSignals(content string) []extractedSignalItem {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if idx := strings.Index(content, "["); idx >= 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "]"); idx >= 0 {
		content = content[:idx+1]
	}

	var items []extractedSignalItem
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		s.logger.Warn("Failed to parse extracted signals JSON", "error", err, "content", content)
		return nil
	}

	var valid []extractedSignalItem
	for _, item := range items {
		if item.Type == "" || item.Value == "" {
			continue
		}
		if _, ok := db.KnownSignalTypes[db.SignalType(item.Type)]; !ok {
			continue
		}
		valid = append(valid, item)
		if s.config.MaxSignalsPerBatch > 0 && len(valid) >= s.config.MaxSignalsPerBatch {
			break
		}
	}

	return valid
}

// confidenceFor applies the default for omitted confidence and clamps the
// rest into [0, 1].
func (s *SignalExtractionService) confidenceFor(item extractedSignalItem) float64 {
	if item.Confidence == nil {
		return s.config.DefaultConfidence
	}
	c := *item.Confidence
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// getChatModel gets a chat model for extraction
func (s *SignalExtractionService) getChatModel(ctx context.Context, modelID string) (einoModel.ToolCallingChatModel, error) {
	if modelID != "" {
		modelConfig, err := s.modelService.GetModelConfig(modelID)
		if err == nil && modelConfig != nil {
			return s.modelService.CreateChatModel(ctx, modelConfig)
		}
	}

	// Fallback to first registered chat model
	modelsList, err := models.LoadModels()
	if err != nil || len(modelsList) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	for _, m := range modelsList {
		if m.SupportsTask(models.TaskTypeChat) {
			return s.modelService.CreateChatModel(ctx, m)
		}
	}

	return nil, fmt.Errorf("no chat-capable model registered")
}
