// Package config loads process configuration from the environment and from
// an optional per-repository YAML override file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// GatewayConfig configures the Ingest Gateway binary.
type GatewayConfig struct {
	AgentToken          string // AGENT_TOKEN — the inbound secret CI callers must present
	DeveloperAgentURL   string // DEVELOPER_AGENT_URL — the processor's base or full URL
	DeveloperAgentToken string // DEVELOPER_AGENT_TOKEN — the processor's inbound secret
}

// LoadGatewayConfig reads the gateway's environment variables. Missing
// values are not an error here: the handler itself treats an absent
// AgentToken as a misconfiguration at request time, and forwards with
// whatever DeveloperAgentToken holds, even when it is empty.
func LoadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		AgentToken:          os.Getenv("AGENT_TOKEN"),
		DeveloperAgentURL:   os.Getenv("DEVELOPER_AGENT_URL"),
		DeveloperAgentToken: os.Getenv("DEVELOPER_AGENT_TOKEN"),
	}
}

// ProcessorConfig configures the Log Processor binary.
type ProcessorConfig struct {
	DeveloperAgentToken string // DEVELOPER_AGENT_TOKEN — the secret inbound callers must present
}

// LoadProcessorConfig reads the processor's environment variables.
func LoadProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		DeveloperAgentToken: os.Getenv("DEVELOPER_AGENT_TOKEN"),
	}
}

const (
	defaultMaxFiles = 4
	minMaxFiles     = 1
	maxMaxFiles     = 8

	defaultMaxLines = 180
	minMaxLines     = 20
	maxMaxLines     = 500
)

// GuardrailConfig bounds the Fix-Agent's patch engine: how many files it may
// touch and how many total diff lines it may produce before the guardrail
// reverts everything.
type GuardrailConfig struct {
	MaxFiles int `yaml:"max_files"`
	MaxLines int `yaml:"max_lines"`
}

// LoadGuardrailConfig applies an optional .ci-triage.yaml override found
// under dir on top of the defaults, then lets FIX_AGENT_MAX_FILES /
// FIX_AGENT_MAX_LINES override that result when set, and finally clamps
// both values to their documented ranges. Env vars take precedence over the
// YAML file.
func LoadGuardrailConfig(dir string) (GuardrailConfig, error) {
	cfg := GuardrailConfig{MaxFiles: defaultMaxFiles, MaxLines: defaultMaxLines}

	if override, err := loadGuardrailOverride(dir); err != nil {
		return cfg, err
	} else if override != nil {
		if override.MaxFiles != 0 {
			cfg.MaxFiles = override.MaxFiles
		}
		if override.MaxLines != 0 {
			cfg.MaxLines = override.MaxLines
		}
	}

	if v := os.Getenv("FIX_AGENT_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("FIX_AGENT_MAX_FILES: %w", err)
		}
		cfg.MaxFiles = n
	}
	if v := os.Getenv("FIX_AGENT_MAX_LINES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("FIX_AGENT_MAX_LINES: %w", err)
		}
		cfg.MaxLines = n
	}

	cfg.MaxFiles = clamp(cfg.MaxFiles, minMaxFiles, maxMaxFiles)
	cfg.MaxLines = clamp(cfg.MaxLines, minMaxLines, maxMaxLines)
	return cfg, nil
}

// loadGuardrailOverride reads <dir>/.ci-triage.yaml, if present. The path
// may also be overridden wholesale via CI_TRIAGE_GUARDRAIL_CONFIG.
func loadGuardrailOverride(dir string) (*GuardrailConfig, error) {
	path := filepath.Join(dir, ".ci-triage.yaml")
	if custom := os.Getenv("CI_TRIAGE_GUARDRAIL_CONFIG"); custom != "" {
		path = custom
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read guardrail config: %w", err)
	}

	var override GuardrailConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse guardrail config: %w", err)
	}
	return &override, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
