package models

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const modelFileName = ".localpulse/models.json"

// ============================================================
// Task Type Constants
// ============================================================

const (
	TaskTypeChat          = "chat"           // Conversational text generation
	TaskTypeTextEmbedding = "text_embedding" // Text to vector
)

// SupportedTaskTypes all valid task type values
var SupportedTaskTypes = map[string]struct{}{
	TaskTypeChat:          {},
	TaskTypeTextEmbedding: {},
}

// ModelLimits represents optional size limits.
type ModelLimits struct {
	MaxTokens     int   `json:"max_tokens"`
	ContextWindow int   `json:"context_window"`
	Dimensions    []int `json:"dimensions,omitempty"` // Embedding output dimensions (first is default)
}

// ModelConfig unified struct containing common fields and vendor extension fields.
// Extra stores vendor specific additional parameters.
type ModelConfig struct {
	ID        string                 `json:"id"`
	Provider  string                 `json:"provider"`
	TaskTypes []string               `json:"task_types"` // chat, text_embedding
	Limits    *ModelLimits           `json:"limits,omitempty"`
	Model     string                 `json:"model"`    // Model identifier
	Name      string                 `json:"name"`     // Display name
	BaseUrl   string                 `json:"base_url"` // API endpoint
	ApiKey    string                 `json:"api_key"`  // API key
	Extra     map[string]interface{} `json:"extra"`    // Vendor-specific fields
}

func (m *ModelConfig) Normalize() {
	if len(m.TaskTypes) == 0 {
		m.TaskTypes = []string{TaskTypeChat}
	}
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
}

// SupportsTask reports whether the model is registered for the given task.
func (m *ModelConfig) SupportsTask(task string) bool {
	for _, t := range m.TaskTypes {
		if t == task {
			return true
		}
	}
	return false
}

// Get model storage file path
func getModelFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return modelFileName // fallback
	}
	return filepath.Join(home, modelFileName)
}

// LoadModels loads the registered model list.
func LoadModels() ([]*ModelConfig, error) {
	path := getModelFilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []*ModelConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []*ModelConfig
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	return models, nil
}

// SaveModels persists the registered model list.
func SaveModels(models []*ModelConfig) error {
	path := getModelFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	"openai":    {},
	"deepseek":  {},
	"anthropic": {},
	"google":    {},
	"ark":       {},
	"ollama":    {},
	"qianfan":   {},
	"qwen":      {},
	"dashscope": {},
	"custom":    {},
}
