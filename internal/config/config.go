package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// ChunkBudget is the maximum estimated token count per chunk.
	ChunkBudget int `json:"chunk_budget,omitempty"`

	// TopK is the number of note chunks retrieved per question.
	TopK int `json:"top_k,omitempty"`

	// ConversationK is the number of past-conversation excerpts retrieved per question.
	ConversationK int `json:"conversation_k,omitempty"`

	// PerNoteCap limits how many chunks of a single note may appear in one bundle.
	PerNoteCap int `json:"per_note_cap,omitempty"`

	// ProfileTitle is the reserved title identifying the profile note.
	ProfileTitle string `json:"profile_title,omitempty"`

	// EmbedModel is the Ollama embedding model name.
	EmbedModel string `json:"embed_model,omitempty"`

	// OllamaURL is the base URL of the local Ollama server.
	OllamaURL string `json:"ollama_url,omitempty"`

	// VectorBackend selects the vector store implementation: "sqlite" or "chroma".
	VectorBackend string `json:"vector_backend,omitempty"`

	// ChromaURL is the base URL of the Chroma server (chroma backend only).
	ChromaURL string `json:"chroma_url,omitempty"`

	// LLMProvider selects the generation backend: "claude" or "ollama".
	LLMProvider string `json:"llm_provider,omitempty"`

	// LLMModel is the Ollama chat model (ollama provider only).
	LLMModel string `json:"llm_model,omitempty"`

	// ClaudeBin is the claude CLI binary name or path (claude provider only).
	ClaudeBin string `json:"claude_bin,omitempty"`

	// LLMTimeoutSecs bounds a single LLM call.
	LLMTimeoutSecs int `json:"llm_timeout_secs,omitempty"`

	// MarkdownDir is the markdown vault to sync. Empty disables the source.
	MarkdownDir string `json:"markdown_dir,omitempty"`

	// LumifyExportDir is the LumifyHub export directory to sync. Empty disables the source.
	LumifyExportDir string `json:"lumifyhub_export_dir,omitempty"`

	// AutoSyncHours is the staleness threshold for automatic sync before queries.
	AutoSyncHours int `json:"auto_sync_hours,omitempty"`

	// AutoSyncLimit caps notes per source during an automatic sync.
	AutoSyncLimit int `json:"auto_sync_limit,omitempty"`

	// HistoryLimit is the number of recent messages included in chat prompts.
	HistoryLimit int `json:"history_limit,omitempty"`

	// HistoryMaxChars truncates each history message in chat prompts.
	HistoryMaxChars int `json:"history_max_chars,omitempty"`

	// WebPort is the default port for the local web UI.
	WebPort int `json:"web_port,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChunkBudget:     512,
		TopK:            5,
		ConversationK:   2,
		PerNoteCap:      2,
		ProfileTitle:    "Who am I?",
		EmbedModel:      "nomic-embed-text",
		OllamaURL:       "http://localhost:11434",
		VectorBackend:   "sqlite",
		ChromaURL:       "http://localhost:8000",
		LLMProvider:     "claude",
		LLMModel:        "llama3",
		ClaudeBin:       "claude",
		LLMTimeoutSecs:  300,
		AutoSyncHours:   24,
		AutoSyncLimit:   200,
		HistoryLimit:    10,
		HistoryMaxChars: 500,
		WebPort:         8642,
	}
}

// Load loads configuration from baseDir/config.json, then applies
// DUMBLEDORE_* environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.dumbledore.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.dumbledore) and repo
// (.dumbledore) directories. Repo config is found by walking upward from
// startDir to find the nearest .dumbledore/config.json.
// Repo config takes precedence for scalar values; arrays are merged.
// Environment overrides apply last. Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	applyEnv(cfg)
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .dumbledore/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".dumbledore", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, return zero config
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// envOverrides maps DUMBLEDORE_* variables onto string config fields.
var envOverrides = map[string]func(*Config, string){
	"DUMBLEDORE_OLLAMA_URL":     func(c *Config, v string) { c.OllamaURL = v },
	"DUMBLEDORE_EMBED_MODEL":    func(c *Config, v string) { c.EmbedModel = v },
	"DUMBLEDORE_VECTOR_BACKEND": func(c *Config, v string) { c.VectorBackend = v },
	"DUMBLEDORE_CHROMA_URL":     func(c *Config, v string) { c.ChromaURL = v },
	"DUMBLEDORE_LLM_PROVIDER":   func(c *Config, v string) { c.LLMProvider = v },
	"DUMBLEDORE_LLM_MODEL":      func(c *Config, v string) { c.LLMModel = v },
	"DUMBLEDORE_CLAUDE_BIN":     func(c *Config, v string) { c.ClaudeBin = v },
	"DUMBLEDORE_MARKDOWN_DIR":   func(c *Config, v string) { c.MarkdownDir = v },
	"DUMBLEDORE_LUMIFYHUB_DIR":  func(c *Config, v string) { c.LumifyExportDir = v },
	"DUMBLEDORE_PROFILE_TITLE":  func(c *Config, v string) { c.ProfileTitle = v },
}

// applyEnv applies environment variable overrides to cfg.
// Integer variables that fail to parse are ignored.
func applyEnv(cfg *Config) {
	for key, set := range envOverrides {
		if v := os.Getenv(key); v != "" {
			set(cfg, v)
		}
	}
	if v := os.Getenv("DUMBLEDORE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TopK = n
		}
	}
	if v := os.Getenv("DUMBLEDORE_CHUNK_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChunkBudget = n
		}
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for non-zero scalars; arrays are merged
// and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.ChunkBudget = pickInt(base.ChunkBudget, overlay.ChunkBudget)
	result.TopK = pickInt(base.TopK, overlay.TopK)
	result.ConversationK = pickInt(base.ConversationK, overlay.ConversationK)
	result.PerNoteCap = pickInt(base.PerNoteCap, overlay.PerNoteCap)
	result.LLMTimeoutSecs = pickInt(base.LLMTimeoutSecs, overlay.LLMTimeoutSecs)
	result.AutoSyncHours = pickInt(base.AutoSyncHours, overlay.AutoSyncHours)
	result.AutoSyncLimit = pickInt(base.AutoSyncLimit, overlay.AutoSyncLimit)
	result.HistoryLimit = pickInt(base.HistoryLimit, overlay.HistoryLimit)
	result.HistoryMaxChars = pickInt(base.HistoryMaxChars, overlay.HistoryMaxChars)
	result.WebPort = pickInt(base.WebPort, overlay.WebPort)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.ProfileTitle = pickString(base.ProfileTitle, overlay.ProfileTitle)
	result.EmbedModel = pickString(base.EmbedModel, overlay.EmbedModel)
	result.OllamaURL = pickString(base.OllamaURL, overlay.OllamaURL)
	result.VectorBackend = pickString(base.VectorBackend, overlay.VectorBackend)
	result.ChromaURL = pickString(base.ChromaURL, overlay.ChromaURL)
	result.LLMProvider = pickString(base.LLMProvider, overlay.LLMProvider)
	result.LLMModel = pickString(base.LLMModel, overlay.LLMModel)
	result.ClaudeBin = pickString(base.ClaudeBin, overlay.ClaudeBin)
	result.MarkdownDir = pickString(base.MarkdownDir, overlay.MarkdownDir)
	result.LumifyExportDir = pickString(base.LumifyExportDir, overlay.LumifyExportDir)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pickInt returns overlay if non-zero, else base.
func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// pickString returns overlay if non-empty, else base.
func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
