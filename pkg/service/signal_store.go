// Append-only signal store with optional semantic search index
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	chromem "github.com/philippgille/chromem-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/models"
	"github.com/localpulse/localpulse/pkg/utils"
)

var ErrVectorIndexDisabled = errors.New("vector index is disabled")

// SignalStoreConfig holds configuration for the signal store
type SignalStoreConfig struct {
	EnableVectorIndex   bool   `yaml:"enable_vector_index"`
	VectorStorePath     string `yaml:"vector_store_path"`
	SemanticSearchLimit int    `yaml:"semantic_search_limit"`
}

// getDefaultVectorStorePath returns the default path for vector storage
func getDefaultVectorStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/signal_vectors" // fallback
	}
	return filepath.Join(home, ".localpulse", "signal_vectors")
}

// DefaultSignalStoreConfig returns default configuration
func DefaultSignalStoreConfig() *SignalStoreConfig {
	return &SignalStoreConfig{
		EnableVectorIndex:   false,
		VectorStorePath:     getDefaultVectorStorePath(),
		SemanticSearchLimit: 20,
	}
}

// SignalStoreService is the append-only persistence layer for signals.
// Signals are immutable: there is no update or delete path here, and the
// aggregation pipeline depends on that.
type SignalStoreService struct {
	db           *gorm.DB
	config       *SignalStoreConfig
	logger       *slog.Logger
	modelService *ModelService

	vectorDB      *chromem.DB
	collections   sync.Map // userID -> *chromem.Collection
	embeddingFunc chromem.EmbeddingFunc
	embeddingOnce sync.Once
}

// NewSignalStoreService creates a new signal store
func NewSignalStoreService(database *gorm.DB, config *SignalStoreConfig) (*SignalStoreService, error) {
	if config == nil {
		config = DefaultSignalStoreConfig()
	}

	s := &SignalStoreService{
		db:     database,
		config: config,
		logger: utils.GetLogger(),
	}

	if config.EnableVectorIndex {
		if err := s.initVectorIndex(); err != nil {
			s.logger.Warn("Failed to initialize vector index, semantic search disabled", "error", err)
			s.config.EnableVectorIndex = false
		}
	}

	return s, nil
}

// SetModelService sets the model service used to build the embedder
func (s *SignalStoreService) SetModelService(modelService *ModelService) {
	s.modelService = modelService
}

// AutoMigrate creates database tables
func (s *SignalStoreService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Signal{}, &db.ChatSession{})
}

// ========== Append ==========

// FailedSignal pairs a signal that could not be persisted with its error.
type FailedSignal struct {
	Signal db.Signal `json:"signal"`
	Error  string    `json:"error"`
}

// AppendResult reports which signals of a batch were persisted. A partial
// failure is not an error at the batch level; callers decide whether to
// retry the remainder.
type AppendResult struct {
	Persisted []db.Signal    `json:"persisted"`
	Failed    []FailedSignal `json:"failed,omitempty"`
}

// Append persists a batch of signals. Each insert succeeds or fails
// independently. Vector indexing is best-effort and never fails an append.
func (s *SignalStoreService) Append(ctx context.Context, signals []db.Signal) (*AppendResult, error) {
	result := &AppendResult{}

	for _, sig := range signals {
		if err := s.db.WithContext(ctx).Create(&sig).Error; err != nil {
			s.logger.Warn("Failed to persist signal",
				"signalID", sig.ID,
				"type", sig.Type,
				"error", err)
			result.Failed = append(result.Failed, FailedSignal{Signal: sig, Error: err.Error()})
			continue
		}
		result.Persisted = append(result.Persisted, sig)

		if s.config.EnableVectorIndex {
			s.addToVectorIndex(ctx, &sig)
		}
	}

	return result, nil
}

// ========== Read ==========

// ListByUser returns the user's signals, newest first. Ties on extracted_at
// are broken by insertion order.
func (s *SignalStoreService) ListByUser(ctx context.Context, userID string, limit int) ([]db.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	var signals []db.Signal
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("extracted_at DESC, created_at DESC").
		Limit(limit).
		Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}

// ListBySession returns all signals for one conversation session, newest first.
func (s *SignalStoreService) ListBySession(ctx context.Context, sessionID string) ([]db.Signal, error) {
	var signals []db.Signal
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("extracted_at DESC, created_at DESC").
		Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}

// ========== Sessions ==========

// TouchSession upserts the chat session row for (user, session) and bumps
// its message count and last-message timestamp.
func (s *SignalStoreService) TouchSession(ctx context.Context, userID, sessionID string, newMessages int) error {
	now := time.Now()
	session := db.ChatSession{
		ID:            sessionID,
		UserID:        userID,
		MessageCount:  newMessages,
		StartedAt:     now,
		LastMessageAt: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + ?", newMessages),
			"last_message_at": now,
		}),
	}).Create(&session).Error
}

// CountSessions returns how many conversation sessions the user has held.
func (s *SignalStoreService) CountSessions(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&db.ChatSession{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ========== Semantic search ==========

// SignalSearchResult is a signal with its vector similarity score.
type SignalSearchResult struct {
	db.Signal
	Similarity float32 `json:"similarity"`
}

// SearchSemantic performs vector-similarity search over a user's signals.
func (s *SignalStoreService) SearchSemantic(ctx context.Context, userID, query string, limit int) ([]SignalSearchResult, error) {
	if !s.config.EnableVectorIndex || s.vectorDB == nil {
		return nil, ErrVectorIndexDisabled
	}
	if limit <= 0 {
		limit = s.config.SemanticSearchLimit
	}

	col, err := s.getOrCreateCollection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(results) == 0 {
		return []SignalSearchResult{}, nil
	}

	ids := make([]string, len(results))
	similarityMap := make(map[string]float32, len(results))
	for i, r := range results {
		ids[i] = r.ID
		similarityMap[r.ID] = r.Similarity
	}

	var signals []db.Signal
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&signals).Error; err != nil {
		return nil, err
	}

	searchResults := make([]SignalSearchResult, len(signals))
	for i, sig := range signals {
		searchResults[i] = SignalSearchResult{Signal: sig, Similarity: similarityMap[sig.ID]}
	}
	return searchResults, nil
}

// initVectorIndex initializes the chromem-go vector store
func (s *SignalStoreService) initVectorIndex() error {
	if s.config.VectorStorePath != "" {
		if err := os.MkdirAll(s.config.VectorStorePath, 0755); err != nil {
			return fmt.Errorf("failed to create vector store directory: %w", err)
		}
	}

	var err error
	if s.config.VectorStorePath != "" {
		s.vectorDB, err = chromem.NewPersistentDB(s.config.VectorStorePath, false)
	} else {
		s.vectorDB = chromem.NewDB()
	}
	if err != nil {
		return fmt.Errorf("failed to create vector DB: %w", err)
	}

	s.logger.Info("Signal vector index initialized", "path", s.config.VectorStorePath)
	return nil
}

// getEmbeddingFunc lazily builds the embedding function from the first
// registered embedding-capable model.
func (s *SignalStoreService) getEmbeddingFunc() chromem.EmbeddingFunc {
	s.embeddingOnce.Do(func() {
		if s.modelService == nil {
			return
		}
		modelsList, err := models.LoadModels()
		if err != nil {
			s.logger.Warn("Failed to load models for embedding", "error", err)
			return
		}
		for _, m := range modelsList {
			if !m.SupportsTask(models.TaskTypeTextEmbedding) {
				continue
			}
			embedder, err := s.modelService.CreateEmbedder(context.Background(), m)
			if err != nil {
				s.logger.Warn("Failed to create embedder", "provider", m.Provider, "error", err)
				continue
			}
			s.embeddingFunc = embeddingFuncFromEmbedder(embedder)
			return
		}
	})
	return s.embeddingFunc
}

// embeddingFuncFromEmbedder wraps an eino Embedder as a chromem.EmbeddingFunc
func embeddingFuncFromEmbedder(embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		embeddings, err := embedder.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		result := make([]float32, len(embeddings[0]))
		for i, v := range embeddings[0] {
			result[i] = float32(v)
		}
		return result, nil
	}
}

// getOrCreateCollection gets or creates the per-user signal collection
func (s *SignalStoreService) getOrCreateCollection(ctx context.Context, userID string) (*chromem.Collection, error) {
	collectionName := "user_" + userID

	if col, ok := s.collections.Load(collectionName); ok {
		return col.(*chromem.Collection), nil
	}

	embeddingFunc := s.getEmbeddingFunc()
	if embeddingFunc == nil {
		return nil, errors.New("no embedding function available")
	}

	col := s.vectorDB.GetCollection(collectionName, embeddingFunc)
	if col != nil {
		s.collections.Store(collectionName, col)
		return col, nil
	}

	col, err := s.vectorDB.CreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, err
	}

	s.collections.Store(collectionName, col)
	return col, nil
}

// addToVectorIndex indexes one signal; failures are logged only.
func (s *SignalStoreService) addToVectorIndex(ctx context.Context, sig *db.Signal) {
	col, err := s.getOrCreateCollection(ctx, sig.UserID)
	if err != nil {
		s.logger.Warn("Failed to get collection for vector index", "error", err)
		return
	}

	content := sig.Value
	if sig.Context != "" {
		content += " " + sig.Context
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:      sig.ID,
		Content: content,
		Metadata: map[string]string{
			"type":       string(sig.Type),
			"session_id": sig.SessionID,
		},
	})
	if err != nil {
		s.logger.Warn("Failed to index signal", "error", err, "signalID", sig.ID)
	}
}
