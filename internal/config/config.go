// Package config loads server configuration from the environment and
// persists runtime LLM switches back to the .env file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the full server configuration. Everything comes from the
// environment with the defaults below; nothing is read from flags.
type Config struct {
	Host string
	Port int

	// Mem0BaseURL is the upstream memory store sidecar.
	Mem0BaseURL string

	// DefaultUserID is used when a tool call omits user_id.
	DefaultUserID string

	// Infer controls whether adds run the sidecar's LLM extraction step.
	Infer bool

	LLMProvider string
	LLMModel    string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDims     int

	// ChromaPersistDir is where the sidecar's Chroma store lives; it is
	// probed locally to resolve the collection name (see collection.go).
	ChromaPersistDir string
	CollectionName   string

	// HistoryDBPath is the local add/delete history database.
	HistoryDBPath string

	// EnvPath is the .env file change_llm_config rewrites. Empty means
	// no persistence (switches last until restart).
	EnvPath string

	// CacheTTL bounds query cache entries.
	CacheTTL time.Duration
}

// Load builds a Config from the environment.
func Load() Config {
	base, _ := os.Getwd()

	cfg := Config{
		Host:              getenv("HOST", "127.0.0.1"),
		Port:              getenvInt("PORT", 8050),
		Mem0BaseURL:       getenv("MEM0_BASE_URL", "http://127.0.0.1:8888"),
		DefaultUserID:     defaultUserID(),
		Infer:             getenvBool("MEM0_INFER", true),
		LLMProvider:       getenv("LLM_PROVIDER", "ollama"),
		LLMModel:          getenv("LLM_MODEL", "llama3.1:8b"),
		EmbeddingProvider: getenv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    getenv("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDims:     getenvInt("EMBEDDING_DIMS", 768),
		ChromaPersistDir:  getenv("CHROMA_PERSIST_DIR", filepath.Join(base, "chroma_db")),
		HistoryDBPath:     getenv("HISTORY_DB_PATH", filepath.Join(base, "memkb.db")),
		EnvPath:           getenv("ENV_PATH", filepath.Join(base, ".env")),
		CacheTTL:          15 * time.Minute,
	}

	baseName := getenv("CHROMA_COLLECTION_NAME", "mem0_local")
	cfg.CollectionName = ResolveCollectionName(cfg.ChromaPersistDir, baseName, cfg.EmbeddingDims)

	return cfg
}

// SaveLLM persists a provider/model switch by rewriting the LLM_PROVIDER
// and LLM_MODEL lines of the .env file in place. Missing file or missing
// lines are not an error: switches still apply for the running process.
func (c Config) SaveLLM(provider, model string) error {
	if c.EnvPath == "" {
		return nil
	}
	f, err := os.Open(c.EnvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open %s: %w", c.EnvPath, err)
	}

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "LLM_PROVIDER="):
			line = "LLM_PROVIDER=" + provider
		case strings.HasPrefix(line, "LLM_MODEL="):
			line = "LLM_MODEL=" + model
		}
		lines = append(lines, line)
	}
	scanErr := sc.Err()
	f.Close()
	if scanErr != nil {
		return fmt.Errorf("config: read %s: %w", c.EnvPath, scanErr)
	}

	out := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(c.EnvPath, []byte(out), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", c.EnvPath, err)
	}
	return nil
}

func defaultUserID() string {
	if v := os.Getenv("DEFAULT_USER_ID"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "default"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "0", "false", "no":
		return false
	}
	return true
}
