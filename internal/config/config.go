// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Simulation defaults, overridable per request
	Simulation SimulationDefaults
}

// SimulationDefaults holds the default Monte Carlo parameters.
// These are the values used when a projection request omits a knob.
type SimulationDefaults struct {
	Trials            int
	EndAge            int
	InflationRate     float64
	PessimisticPctile float64
	OptimisticPctile  float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. Check GLIDEPATH_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path and ensure it exists
	dataDir := getEnv("GLIDEPATH_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GLIDEPATH_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Simulation: SimulationDefaults{
			Trials:            getEnvAsInt("SIM_TRIALS", 1000),
			EndAge:            getEnvAsInt("SIM_END_AGE", 95),
			InflationRate:     getEnvAsFloat("SIM_INFLATION_RATE", 0.03),
			PessimisticPctile: getEnvAsFloat("SIM_PESSIMISTIC_PCTILE", 10),
			OptimisticPctile:  getEnvAsFloat("SIM_OPTIMISTIC_PCTILE", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	s := c.Simulation
	if s.Trials < 1 {
		return fmt.Errorf("SIM_TRIALS must be at least 1, got %d", s.Trials)
	}
	if s.InflationRate < 0 || s.InflationRate >= 1 {
		return fmt.Errorf("SIM_INFLATION_RATE must be in [0, 1), got %v", s.InflationRate)
	}
	if s.PessimisticPctile <= 0 || s.OptimisticPctile >= 100 || s.PessimisticPctile >= s.OptimisticPctile {
		return fmt.Errorf("invalid percentile bounds %v/%v", s.PessimisticPctile, s.OptimisticPctile)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
