package config

import (
	"fmt"
	"os"
)

type Config struct {
	DBPath     string
	Addr       string
	PromptPath string

	DeepSeekAPIKey string

	// MockLLM keeps the planner on the deterministic rule path. Useful for
	// local development and CI where no API key exists.
	MockLLM bool
}

// Load reads all environment variables. Fails fast when the model key is
// missing and mock mode is off.
func Load() (*Config, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "/data/db.sqlite" // default: Docker volume path
	}

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	promptPath := os.Getenv("PROMPT_PATH")
	if promptPath == "" {
		promptPath = "templates/system_prompt.yaml"
	}

	c := &Config{
		DBPath:         dbPath,
		Addr:           addr,
		PromptPath:     promptPath,
		DeepSeekAPIKey: os.Getenv("DEEPSEEK_API_KEY"),
		MockLLM:        os.Getenv("MOCK_LLM") == "true",
	}

	if !c.MockLLM && c.DeepSeekAPIKey == "" {
		return nil, fmt.Errorf("missing required environment variable: DEEPSEEK_API_KEY (or set MOCK_LLM=true)")
	}

	return c, nil
}
