package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/handlers"
	"github.com/soumyapothuganti123-del/image-insight-ai/internal/services"
)

type providerConfig interface {
	describer(logger *slog.Logger) (handlers.Describer, error)
}

type config struct {
	Port     string         `yaml:"port"`
	LogLevel string         `yaml:"logLevel"`
	Provider providerConfig `yaml:"provider"`
}

type insightConfig struct {
	BaseURL   string `yaml:"baseURL"`
	ClientKey string `yaml:"clientKey"`
}

type openAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type ollamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port     string         `yaml:"port"`
		LogLevel string         `yaml:"logLevel"`
		Provider map[string]any `yaml:"provider"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel

	providerName, ok := rawConfig.Provider["name"].(string)
	if !ok {
		return fmt.Errorf("provider name is required")
	}

	providerRawYAML, err := yaml.Marshal(rawConfig.Provider)
	if err != nil {
		return err
	}

	var provider providerConfig
	switch providerName {
	case "insight":
		provider = &insightConfig{}
	case "openai":
		provider = &openAIConfig{}
	case "ollama":
		provider = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown provider: %s", providerName)
	}

	if err := yaml.Unmarshal(providerRawYAML, provider); err != nil {
		return err
	}

	c.Provider = provider

	return nil
}

func (i insightConfig) describer(logger *slog.Logger) (handlers.Describer, error) {
	if i.BaseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	clientKey := i.ClientKey
	if clientKey == "" {
		clientKey = os.Getenv("INSIGHT_CLIENT_KEY")
	}
	if clientKey == "" {
		return nil, fmt.Errorf("clientKey is required")
	}
	return services.NewInsight(i.BaseURL, clientKey, logger), nil
}

func (o openAIConfig) describer(logger *slog.Logger) (handlers.Describer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, logger), nil
}

func (o ollamaConfig) describer(*slog.Logger) (handlers.Describer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model), nil
}
