package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/botmaster/internal/watcher"
)

// WebhookFilterConfig narrows which events a sink receives.
type WebhookFilterConfig struct {
	// Agent is an optional glob matched against "host:port" (e.g. "10.0.0.*").
	Agent string `yaml:"agent"`
}

type WebhookRetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"`
}

// WebhookConfig is one entry under the `webhooks:` list in webhooks.yaml.
type WebhookConfig struct {
	Name      string              `yaml:"name"`
	URL       string              `yaml:"url"`
	Events    []string            `yaml:"events"`
	Formatter string              `yaml:"formatter"`
	Filter    WebhookFilterConfig `yaml:"filter"`
	Retry     WebhookRetryConfig  `yaml:"retry"`
	Timeout   string              `yaml:"timeout"`
	Secret    string              `yaml:"secret"`
}

func (c *WebhookConfig) ValidateConfig() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}

	urlStr := strings.TrimSpace(c.URL)
	if urlStr == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", urlStr, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", urlStr)
	}

	if strings.TrimSpace(c.Timeout) != "" {
		if _, err := time.ParseDuration(strings.TrimSpace(c.Timeout)); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}

	if strings.TrimSpace(c.Formatter) != "" {
		if !isValidWebhookFormatter(c.Formatter) {
			return fmt.Errorf("unknown formatter %q (supported: json, slack, discord, teams)", strings.TrimSpace(c.Formatter))
		}
	}

	for _, ev := range c.Events {
		ev = strings.TrimSpace(ev)
		if ev == "" {
			continue
		}
		if !isRecognizedWebhookEvent(ev) {
			return fmt.Errorf("unknown event %q", ev)
		}
	}

	if strings.TrimSpace(c.Filter.Agent) != "" {
		if _, err := path.Match(c.Filter.Agent, "example"); err != nil {
			return fmt.Errorf("invalid filter.agent glob %q: %w", c.Filter.Agent, err)
		}
	}

	if strings.TrimSpace(c.Retry.Backoff) != "" && strings.ToLower(strings.TrimSpace(c.Retry.Backoff)) != "exponential" {
		return fmt.Errorf("invalid retry.backoff %q (supported: exponential)", strings.TrimSpace(c.Retry.Backoff))
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("invalid retry.max_attempts %d (must be >= 0)", c.Retry.MaxAttempts)
	}

	return nil
}

func (c *WebhookConfig) applyDefaults() {
	if strings.TrimSpace(c.Formatter) == "" {
		c.Formatter = "json"
	}
	if strings.TrimSpace(c.Timeout) == "" {
		c.Timeout = "10s"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if strings.TrimSpace(c.Retry.Backoff) == "" {
		c.Retry.Backoff = "exponential"
	}
}

// WebhooksPath returns the sink config path, which lives next to config.toml.
func WebhooksPath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "webhooks.yaml")
}

// ParseWebhookConfig extracts and validates the `webhooks:` list. The input
// may contain other top-level keys, which are ignored. ${VAR} placeholders
// are expanded from the environment before parsing; a missing variable is an
// error.
func ParseWebhookConfig(yamlBytes []byte) ([]WebhookConfig, error) {
	if len(bytes.TrimSpace(yamlBytes)) == 0 {
		return nil, nil
	}

	expanded, err := expandEnvPlaceholders(yamlBytes)
	if err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(expanded, &root); err != nil {
		return nil, err
	}

	webhooksNode := findTopLevelYAMLKey(&root, "webhooks")
	if webhooksNode == nil {
		return nil, nil
	}
	if webhooksNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("webhooks: expected a list")
	}

	out := make([]WebhookConfig, 0, len(webhooksNode.Content))
	for idx, item := range webhooksNode.Content {
		raw, err := yaml.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("webhooks[%d]: marshal: %w", idx, err)
		}

		var cfg WebhookConfig
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("webhooks[%d]: %w", idx, err)
		}

		cfg.applyDefaults()
		if err := cfg.ValidateConfig(); err != nil {
			name := strings.TrimSpace(cfg.Name)
			if name == "" {
				name = "(unnamed)"
			}
			return nil, fmt.Errorf("webhooks[%d] %s: %w", idx, name, err)
		}

		out = append(out, cfg)
	}

	return out, nil
}

// LoadWebhooks loads sink configuration from path (WebhooksPath when empty).
// A missing file yields an empty list.
func LoadWebhooks(path string) ([]WebhookConfig, error) {
	if path == "" {
		path = WebhooksPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return ParseWebhookConfig(data)
}

// WatchWebhooks watches the sink config file and calls onChange with the
// reloaded list. It returns a close function to stop watching.
func WatchWebhooks(path string, onChange func([]WebhookConfig)) (func(), error) {
	if path == "" {
		path = WebhooksPath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving webhooks path: %w", err)
	}
	path = abs

	var lastNames string
	emit := func(cfgs []WebhookConfig) {
		if onChange != nil {
			onChange(cfgs)
		}
		names := webhookNames(cfgs)
		if names != lastNames {
			slog.Info("reloaded webhooks", "count", len(cfgs), "names", names)
			lastNames = names
		}
	}

	w, err := watcher.New(func(events []watcher.Event) {
		_ = events
		cfgs, err := LoadWebhooks(path)
		if err != nil {
			slog.Error("reloading webhooks", "path", path, "error", err)
			return
		}
		emit(cfgs)
	}, watcher.WithDebounceDuration(500*time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("creating webhooks watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		// File may not exist yet; watch the directory for its creation.
		if err := w.Add(filepath.Dir(path)); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching webhooks dir: %w", err)
		}
	}

	// Initial load.
	cfgs, err := LoadWebhooks(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	emit(cfgs)

	return func() { w.Close() }, nil
}

func webhookNames(cfgs []WebhookConfig) string {
	if len(cfgs) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		n := strings.TrimSpace(c.Name)
		if n == "" {
			continue
		}
		names = append(names, n)
	}
	if len(names) == 0 {
		return "(unnamed)"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func findTopLevelYAMLKey(root *yaml.Node, key string) *yaml.Node {
	n := root
	if n == nil {
		return nil
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		v := n.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.Value == key {
			return v
		}
	}
	return nil
}

var envPlaceholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvPlaceholders(in []byte) ([]byte, error) {
	s := string(in)
	missing := make(map[string]struct{})

	out := envPlaceholderRe.ReplaceAllStringFunc(s, func(m string) string {
		// m looks like ${VAR}
		key := strings.TrimSuffix(strings.TrimPrefix(m, "${"), "}")
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		missing[key] = struct{}{}
		return m
	})

	if len(missing) == 0 {
		return []byte(out), nil
	}

	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, fmt.Errorf("missing environment variables: %s", strings.Join(keys, ", "))
}

func isRecognizedWebhookEvent(ev string) bool {
	switch strings.ToLower(strings.TrimSpace(ev)) {
	case "agent.status",
		"agent.action",
		"timer.armed",
		"timer.expired",
		"schedule.activated",
		"schedule.transition",
		"fleet.agent_added",
		"fleet.agent_removed",
		"fleet.config_reloaded":
		return true
	default:
		return false
	}
}

func isValidWebhookFormatter(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "slack", "discord", "teams", "msteams", "ms-teams", "microsoft-teams", "microsoft_teams":
		return true
	default:
		return false
	}
}
