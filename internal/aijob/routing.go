package aijob

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newsintel/searchcore/internal/config"
)

// ProviderRoute names one provider dispatched for a routing rule.
type ProviderRoute struct {
	ProviderID string `yaml:"provider_id"`
	TaskType   string `yaml:"task_type"`
}

// Rule maps a topic keyword to the providers dispatched for it. Rules are
// evaluated in order; the first whose Topic is a case-insensitive
// substring of the requested topic wins. An empty Topic matches anything
// and should be listed last as the default rule.
type Rule struct {
	Topic     string          `yaml:"topic"`
	Providers []ProviderRoute `yaml:"providers"`
}

// RoutingTable is the static topic/task-type → provider-ids map the
// orchestrator uses to plan an AiJob's sub-tasks.
type RoutingTable struct {
	Rules []Rule `yaml:"rules"`
}

const (
	// DefaultConfigPath is where the routing table is read from absent an
	// override.
	DefaultConfigPath = ".searchcore-routing.yaml"
	// ConfigPathEnvVar overrides DefaultConfigPath.
	ConfigPathEnvVar = "SEARCHCORE_ROUTING_CONFIG_PATH"
)

// defaultRules is used when no routing config file is present, so the
// orchestrator still has somewhere to dispatch sub-tasks.
var defaultRules = []Rule{
	{
		Providers: []ProviderRoute{
			{ProviderID: "web-search", TaskType: "crawl"},
			{ProviderID: "ai-analysis", TaskType: "analyze"},
		},
	},
}

// LoadRoutingTable loads the routing table from a YAML file at path.
// Missing or invalid files degrade gracefully to defaultRules rather than
// failing orchestrator startup, mirroring this codebase's other optional
// YAML config loaders.
func LoadRoutingTable(path string) (*RoutingTable, error) {
	table := &RoutingTable{Rules: defaultRules}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("routing config not found, using default routing table", slog.String("path", path))
			return table, nil
		}

		slog.Warn("failed to read routing config, using default routing table",
			slog.String("path", path), slog.String("error", err.Error()))

		return table, nil
	}

	if len(data) == 0 {
		return table, nil
	}

	var loaded RoutingTable
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		slog.Warn("failed to parse routing config, using default routing table",
			slog.String("path", path), slog.String("error", err.Error()))

		return table, nil
	}

	if len(loaded.Rules) == 0 {
		return table, nil
	}

	return &loaded, nil
}

// LoadRoutingTableFromEnv loads from SEARCHCORE_ROUTING_CONFIG_PATH,
// falling back to DefaultConfigPath.
func LoadRoutingTableFromEnv() (*RoutingTable, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadRoutingTable(path)
}

// RouteFor returns the providers assigned to topic: the first rule whose
// Topic is empty (default) or a case-insensitive substring of topic.
func (t *RoutingTable) RouteFor(topic string) []ProviderRoute {
	lower := strings.ToLower(topic)

	for _, rule := range t.Rules {
		if rule.Topic == "" {
			return rule.Providers
		}

		if strings.Contains(lower, strings.ToLower(rule.Topic)) {
			return rule.Providers
		}
	}

	return nil
}
