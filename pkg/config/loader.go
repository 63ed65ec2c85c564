package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// TidelineYAMLConfig represents the complete tideline.yaml file structure
type TidelineYAMLConfig struct {
	Source    *SourceConfig    `yaml:"source"`
	Ingest    *IngestConfig    `yaml:"ingest"`
	Enrich    *EnrichConfig    `yaml:"enrich"`
	Normalize *NormalizeConfig `yaml:"normalize"`
	Embed     *EmbedConfig     `yaml:"embed"`
	Cluster   *ClusterConfig   `yaml:"cluster"`
	Story     *StoryConfig     `yaml:"story"`
	Queue     *QueueConfig     `yaml:"queue"`
	API       *APIConfig       `yaml:"api"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// ProvidersYAMLConfig represents the complete llm-providers.yaml file structure
type ProvidersYAMLConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in defaults under user-defined values
//  5. Build the provider registry
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"handles", stats.Handles,
		"keywords", stats.Keywords,
		"schedules", stats.Schedules)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load tideline.yaml (pipeline sections, queue, api, schedules)
	userCfg, err := loader.loadTidelineYAML()
	if err != nil {
		return nil, NewLoadError("tideline.yaml", err)
	}

	// 2. Load llm-providers.yaml (optional; built-ins cover the defaults)
	userProviders, err := loader.loadProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Merge built-in + user-defined providers (user overrides built-in)
	builtin := GetBuiltinConfig()
	providers := mergeProviders(builtin.Providers, userProviders)

	// 4. Resolve each section: start from defaults, merge user values on
	// top so unset fields keep their defaults.
	source, err := resolveSection(DefaultSourceConfig(), userCfg.Source, "source")
	if err != nil {
		return nil, err
	}
	ingest, err := resolveSection(DefaultIngestConfig(), userCfg.Ingest, "ingest")
	if err != nil {
		return nil, err
	}
	enrich, err := resolveSection(DefaultEnrichConfig(), userCfg.Enrich, "enrich")
	if err != nil {
		return nil, err
	}
	normalize, err := resolveSection(DefaultNormalizeConfig(), userCfg.Normalize, "normalize")
	if err != nil {
		return nil, err
	}
	embed, err := resolveSection(DefaultEmbedConfig(), userCfg.Embed, "embed")
	if err != nil {
		return nil, err
	}
	cluster, err := resolveSection(DefaultClusterConfig(), userCfg.Cluster, "cluster")
	if err != nil {
		return nil, err
	}
	story, err := resolveSection(DefaultStoryConfig(), userCfg.Story, "story")
	if err != nil {
		return nil, err
	}
	queue, err := resolveSection(DefaultQueueConfig(), userCfg.Queue, "queue")
	if err != nil {
		return nil, err
	}
	api, err := resolveSection(DefaultAPIConfig(), userCfg.API, "api")
	if err != nil {
		return nil, err
	}

	schedules := userCfg.Schedules
	if len(schedules) == 0 {
		schedules = DefaultSchedules()
	}

	return &Config{
		configDir:        configDir,
		Source:           source,
		Ingest:           ingest,
		Enrich:           enrich,
		Normalize:        normalize,
		Embed:            embed,
		Cluster:          cluster,
		Story:            story,
		Queue:            queue,
		API:              api,
		Schedules:        schedules,
		ProviderRegistry: NewProviderRegistry(providers),
	}, nil
}

// resolveSection merges user-provided values over defaults; non-zero user
// values win while unset fields keep their defaults.
func resolveSection[T any](defaults *T, user *T, name string) (*T, error) {
	if user == nil {
		return defaults, nil
	}
	if err := mergo.Merge(defaults, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge %s config: %w", name, err)
	}
	return defaults, nil
}

// mergeProviders merges built-in and user-defined provider configurations.
// User-defined providers override built-in providers with the same name.
func mergeProviders(builtinProviders map[string]ProviderConfig, userProviders map[string]ProviderConfig) map[string]*ProviderConfig {
	result := make(map[string]*ProviderConfig)

	for name, provider := range builtinProviders {
		providerCopy := provider
		result[name] = &providerCopy
	}

	for name, userProvider := range userProviders {
		providerCopy := userProvider
		result[name] = &providerCopy
	}

	return result
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadTidelineYAML() (*TidelineYAMLConfig, error) {
	var config TidelineYAMLConfig

	if err := l.loadYAML("tideline.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadProvidersYAML() (map[string]ProviderConfig, error) {
	var config ProvidersYAMLConfig
	config.Providers = make(map[string]ProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		// The providers file is optional; built-in entries cover the
		// default provider names.
		if errors.Is(err, ErrConfigNotFound) {
			return config.Providers, nil
		}
		return nil, err
	}

	return config.Providers, nil
}
