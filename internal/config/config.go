// Package config loads the relay configuration from an optional JSON file
// and the process environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds every setting of the receiver, bridge and worker. Each
// process reads only the sections it needs.
type Config struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	Queue     struct {
		URL               string `json:"url"`
		Region            string `json:"region"`
		Name              string `json:"name"`
		DLQName           string `json:"dlq_name"`
		MaxReceiveCount   int    `json:"max_receive_count"`
		VisibilityTimeout int    `json:"visibility_timeout"`
		RetentionPeriod   int    `json:"retention_period"`
	} `json:"queue"`
	Runtime struct {
		ARN       string `json:"arn"`
		Region    string `json:"region"`
		Qualifier string `json:"qualifier"`
		Verbose   bool   `json:"verbose"`
	} `json:"runtime"`
	Slack struct {
		BotToken          string  `json:"bot_token"`
		SigningSecret     string  `json:"signing_secret"`
		BotUserID         string  `json:"bot_user_id"`
		StatusText        string  `json:"status_text"`
		MessagesPerSecond float64 `json:"messages_per_second"`
	} `json:"slack"`
	Bridge struct {
		FailurePolicy string `json:"failure_policy"`
		DedupSize     int    `json:"dedup_size"`
	} `json:"bridge"`
	Serve struct {
		Listen          string `json:"listen"`
		MaxConcurrent   int    `json:"max_concurrent"`
		WaitTimeSeconds int    `json:"wait_time_seconds"`
	} `json:"serve"`
	Worker struct {
		Listen           string  `json:"listen"`
		ModelID          string  `json:"model_id"`
		ModelRegion      string  `json:"model_region"`
		ModelBaseURL     string  `json:"model_base_url"`
		APIKey           string  `json:"api_key"`
		MaxIterations    int     `json:"max_iterations"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		KnowledgeBaseID  string  `json:"knowledge_base_id"`
		KBRegion         string  `json:"kb_region"`
		KBResults        int     `json:"kb_results"`
		ToolOutputTokens int     `json:"tool_output_tokens"`
		SystemPromptPath string  `json:"system_prompt_path"`
	} `json:"worker"`
}

// DefaultPath returns ~/.agentrelay/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".agentrelay", "config.json")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Queue.Name = "slack-bot-queue"
	cfg.Queue.MaxReceiveCount = 3
	cfg.Queue.VisibilityTimeout = 300
	cfg.Queue.RetentionPeriod = 345600
	cfg.Runtime.Region = "us-east-1"
	cfg.Runtime.Verbose = true
	cfg.Slack.StatusText = ":thinking_face: Thinking..."
	cfg.Slack.MessagesPerSecond = 1
	cfg.Bridge.FailurePolicy = "notify"
	cfg.Bridge.DedupSize = 1000
	cfg.Serve.Listen = ":3000"
	cfg.Serve.MaxConcurrent = 4
	cfg.Serve.WaitTimeSeconds = 20
	cfg.Worker.Listen = ":8080"
	cfg.Worker.ModelID = "openai.gpt-oss-120b-1:0"
	cfg.Worker.ModelRegion = "us-east-1"
	cfg.Worker.MaxIterations = 5
	cfg.Worker.MaxTokens = 2048
	cfg.Worker.Temperature = 0.3
	cfg.Worker.KBRegion = "us-east-1"
	cfg.Worker.KBResults = 5
	cfg.Worker.ToolOutputTokens = 4000
	return cfg
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; Lambda functions run without one.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values (highest precedence).
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"SQS_QUEUE_URL":         &cfg.Queue.URL,
		"AWS_REGION":            &cfg.Queue.Region,
		"AGENTCORE_RUNTIME_ARN": &cfg.Runtime.ARN,
		"AGENTCORE_REGION":      &cfg.Runtime.Region,
		"AGENTCORE_QUALIFIER":   &cfg.Runtime.Qualifier,
		"SLACK_BOT_TOKEN":       &cfg.Slack.BotToken,
		"SLACK_SIGNING_SECRET":  &cfg.Slack.SigningSecret,
		"SLACK_BOT_USER_ID":     &cfg.Slack.BotUserID,
		"BRIDGE_FAILURE_POLICY": &cfg.Bridge.FailurePolicy,
		"KNOWLEDGE_BASE_ID":     &cfg.Worker.KnowledgeBaseID,
		"KB_REGION":             &cfg.Worker.KBRegion,
		"MODEL_ID":              &cfg.Worker.ModelID,
		"MODEL_REGION":          &cfg.Worker.ModelRegion,
		"MODEL_BASE_URL":        &cfg.Worker.ModelBaseURL,
		"BEDROCK_API_KEY":       &cfg.Worker.APIKey,
		"LOG_LEVEL":             &cfg.LogLevel,
		"LOG_FORMAT":            &cfg.LogFormat,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	// SQS_REGION wins over AWS_REGION for the queue client.
	if v := os.Getenv("SQS_REGION"); v != "" {
		cfg.Queue.Region = v
	}
	if v := os.Getenv("MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_ITERATIONS: %w", err)
		}
		cfg.Worker.MaxIterations = n
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Bridge.FailurePolicy) {
	case "", "notify", "retry":
	default:
		return fmt.Errorf("bridge.failure_policy: unknown policy %q (want notify or retry)", c.Bridge.FailurePolicy)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q (want text or json)", c.LogFormat)
	}
	if c.Slack.MessagesPerSecond < 0 {
		return errors.New("slack.messages_per_second must not be negative")
	}
	return nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its JSON object form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the flattened configuration, optionally with secrets
// masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the effective value of key (file, defaults and
// environment combined).
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	if v, ok := flat[key]; ok {
		return v, nil
	}
	// Keys outside the struct live only in the file.
	raw, err := readRaw(path)
	if err == nil {
		if v, ok := Flatten(raw)[key]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown config key: %s", key)
}

// SetValue stores key in the file at path. value is parsed as JSON when
// possible (numbers, booleans) and stored as a string otherwise. The file
// must exist; run setup to create it.
func SetValue(path, key, value string) error {
	raw, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(raw)
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		flat[key] = v
		if data, err := encode(flat); err == nil {
			return writeFile(path, data)
		}
	}
	// Numeric-looking tokens and ids are still strings for string fields.
	flat[key] = value
	data, err := encode(flat)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return writeFile(path, data)
}

// encode nests flat and checks that the result still decodes into Config.
func encode(flat map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, Default()); err != nil {
		return nil, err
	}
	return data, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}
