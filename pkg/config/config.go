package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Analysis AnalysisConfig
	Cache    CacheConfig
	LLM      LLMConfig
	GitHub   GitHubConfig
}

type ServerConfig struct {
	Port         string
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

type DatabaseConfig struct {
	Path string
}

type AnalysisConfig struct {
	// Workers is the number of concurrent repository analyses (small, 1-5).
	Workers    int
	QueueDepth int
	MaxCommits int
	ClonePath  string
}

type CacheConfig struct {
	TTL time.Duration
}

type LLMConfig struct {
	APIKey                string
	Model                 string
	ClassificationTimeout time.Duration
	AnswerTimeout         time.Duration
	ContextBudget         int // max bytes of file content per retrieval answer
	ContextFiles          int // max files per retrieval answer
}

type GitHubConfig struct {
	Token string
	// UseAPILog mines history through the GitHub API instead of the local
	// clone's git log.
	UseAPILog bool
}

var AppConfig *Config

// Load loads configuration from .env file and environment variables
func Load() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Mode:         getEnv("GIN_MODE", "release"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 15),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./chronolens.db"),
		},
		Analysis: AnalysisConfig{
			Workers:    clampWorkers(getEnvAsInt("ANALYSIS_WORKERS", 2)),
			QueueDepth: getEnvAsInt("ANALYSIS_QUEUE_DEPTH", 32),
			MaxCommits: getEnvAsInt("MAX_COMMITS", 10000),
			ClonePath:  getEnv("CLONE_PATH", "./clones"),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		LLM: LLMConfig{
			APIKey:                getEnv("OPENAI_API_KEY", ""),
			Model:                 getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			ClassificationTimeout: getEnvAsDuration("CLASSIFICATION_TIMEOUT", 5*time.Second),
			AnswerTimeout:         getEnvAsDuration("ANSWER_TIMEOUT", 30*time.Second),
			ContextBudget:         getEnvAsInt("CONTEXT_BUDGET_BYTES", 48000),
			ContextFiles:          getEnvAsInt("CONTEXT_MAX_FILES", 8),
		},
		GitHub: GitHubConfig{
			Token:     getEnv("GITHUB_TOKEN", ""),
			UseAPILog: getEnv("LOG_PROVIDER", "git") == "github",
		},
	}

	return nil
}

// clampWorkers keeps the analysis pool within its supported range
func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
