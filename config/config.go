package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything a workflow run needs: model access, external
// service endpoints, loop ceilings, and the checkpoint database location.
type Config struct {
	DataDir string `json:"data_dir"`

	// Decision-maker (OpenAI-compatible endpoint).
	ModelBaseURL   string `json:"model_base_url"`
	ModelAPIKey    string `json:"model_api_key"`
	ModelName      string `json:"model_name"`
	ModelMaxTokens int    `json:"model_max_tokens"`

	// External collaborators.
	GammaHost    string `json:"gamma_host"`
	ClobHost     string `json:"clob_host"`
	ClobAPIKey   string `json:"clob_api_key"`
	ResearchHost string `json:"research_host"`

	// Loop ceilings. ResearchLoopLimit is the tighter local bound on the
	// research sub-loop; MaxLoops is the per-stage retry ceiling.
	MaxLoops          int `json:"max_loops"`
	ResearchLoopLimit int `json:"research_loop_limit"`

	ResearchBreadth int `json:"research_breadth"`
	ResearchDepth   int `json:"research_depth"`

	// DefaultFunds is used when the run input does not specify
	// available funds and the CLOB balance lookup is unavailable.
	DefaultFunds float64 `json:"default_funds"`

	Debug bool `json:"debug"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		DataDir: filepath.Join(currentDir, "data"),

		ModelBaseURL:   "https://api.openai.com/v1",
		ModelName:      "gpt-4o",
		ModelMaxTokens: 4096,

		GammaHost:    "https://gamma-api.polymarket.com",
		ClobHost:     "https://clob.polymarket.com",
		ResearchHost: "http://localhost:3051",

		MaxLoops:          6,
		ResearchLoopLimit: 3,
		ResearchBreadth:   4,
		ResearchDepth:     2,

		DefaultFunds: 10.0,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv("MODEL_BASE_URL"); val != "" {
		c.ModelBaseURL = val
	}
	if val := os.Getenv("MODEL_API_KEY"); val != "" {
		c.ModelAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" && c.ModelAPIKey == "" {
		c.ModelAPIKey = val
	}
	if val := os.Getenv("MODEL_NAME"); val != "" {
		c.ModelName = val
	}
	if val := os.Getenv("MODEL_MAX_TOKENS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.ModelMaxTokens = n
		}
	}

	if val := os.Getenv("GAMMA_HOST"); val != "" {
		c.GammaHost = val
	}
	if val := os.Getenv("CLOB_HOST"); val != "" {
		c.ClobHost = val
	}
	if val := os.Getenv("CLOB_API_KEY"); val != "" {
		c.ClobAPIKey = val
	}
	if val := os.Getenv("RESEARCH_HOST"); val != "" {
		c.ResearchHost = val
	}

	if val := os.Getenv("MAX_LOOPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.MaxLoops = n
		}
	}
	if val := os.Getenv("RESEARCH_LOOP_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.ResearchLoopLimit = n
		}
	}
	if val := os.Getenv("RESEARCH_BREADTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.ResearchBreadth = n
		}
	}
	if val := os.Getenv("RESEARCH_DEPTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.ResearchDepth = n
		}
	}

	if val := os.Getenv("DEFAULT_FUNDS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
			c.DefaultFunds = f
		}
	}

	if val := os.Getenv("DEBUG"); val != "" {
		if debug, err := strconv.ParseBool(val); err == nil {
			c.Debug = debug
		}
	}
}

// Validate reports unrecoverable configuration errors. A missing model key
// always aborts the run; a missing CLOB key only matters when orders could
// actually be placed.
func (c *Config) Validate() error {
	if c.ModelAPIKey == "" {
		return fmt.Errorf("MODEL_API_KEY (or OPENAI_API_KEY) is required")
	}
	if c.ClobAPIKey == "" && !c.Debug {
		return fmt.Errorf("CLOB_API_KEY is required unless running with DEBUG=true")
	}
	if c.MaxLoops <= 0 {
		return fmt.Errorf("max_loops must be positive, got %d", c.MaxLoops)
	}
	if c.ResearchLoopLimit <= 0 {
		return fmt.Errorf("research_loop_limit must be positive, got %d", c.ResearchLoopLimit)
	}
	return nil
}
