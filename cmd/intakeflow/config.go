package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all intakeflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr        string `json:"listen_addr"`
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	RecompileSchedule string `json:"recompile_schedule"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4600",
		DBPath:            filepath.Join(intakeflowDir(), "intakeflow.db"),
		LogLevel:          "info",
		RecompileSchedule: "*/5 * * * *",
	}
}

func intakeflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".intakeflow"
	}
	return filepath.Join(home, ".intakeflow")
}

func settingsPath() string {
	return filepath.Join(intakeflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("INTAKEFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("INTAKEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("INTAKEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("INTAKEFLOW_RECOMPILE_SCHEDULE"); v != "" {
		cfg.RecompileSchedule = v
	}

	return cfg
}
