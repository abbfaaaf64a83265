package cmd

import (
	"fmt"
	"strings"

	"github.com/mattsolo1/grove-script/pkg/cache"
	"github.com/mattsolo1/grove-script/pkg/config"
	"github.com/mattsolo1/grove-script/pkg/engine"
	"github.com/mattsolo1/grove-script/pkg/provider"
	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/toolrun"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// buildProvider constructs the adapter for the named backend family.
func buildProvider(cfg *config.Config, name string) (provider.Provider, error) {
	timeouts := provider.Timeouts{
		Fast:  cfg.Timeouts.Fast.Std(),
		Pro:   cfg.Timeouts.Pro.Std(),
		Local: cfg.Timeouts.Local.Std(),
	}
	pc, err := cfg.ProviderFor(name)
	if err != nil {
		return nil, err
	}

	switch name {
	case "gemini":
		return provider.NewGemini(provider.GeminiConfig{
			BaseURL:  pc.BaseURL,
			APIKeys:  pc.APIKeys,
			Timeouts: timeouts,
		}), nil
	case "openai":
		return provider.NewOpenAI(provider.OpenAIConfig{
			BaseURL:  pc.BaseURL,
			APIKeys:  pc.APIKeys,
			Timeouts: timeouts,
		}), nil
	case "anthropic":
		return provider.NewAnthropic(provider.AnthropicConfig{
			BaseURL:  pc.BaseURL,
			APIKeys:  pc.APIKeys,
			Timeouts: timeouts,
		}), nil
	case "ollama":
		return provider.NewOllama(provider.OllamaConfig{
			BaseURL:  pc.BaseURL,
			Timeouts: timeouts,
		}), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// buildEngine wires the full execution stack from config. The loader is
// shared with the caller so the top-level load and the engine's chain
// and sub-script loads hit one parse cache.
func buildEngine(cfg *config.Config, loader *script.Loader, providerName, model string) (*engine.Engine, error) {
	ec, err := engineConfig(cfg, loader, providerName, model)
	if err != nil {
		return nil, err
	}
	return engine.New(ec), nil
}

func engineConfig(cfg *config.Config, loader *script.Loader, providerName, model string) (engine.Config, error) {
	if providerName == "" {
		providerName = cfg.Provider
	}
	p, err := buildProvider(cfg, providerName)
	if err != nil {
		return engine.Config{}, err
	}

	if model == "" {
		pc, _ := cfg.ProviderFor(providerName)
		model = pc.Model
	}

	var store cache.Store
	if cfg.Cache.Path != "" {
		store, err = cache.NewSqlite(cfg.Cache.Path)
		if err != nil {
			return engine.Config{}, fmt.Errorf("open cache: %w", err)
		}
	} else {
		store = cache.NewMemory()
	}

	return engine.Config{
		Loader:        loader,
		Provider:      p,
		Tools:         toolrun.NewAllowlist(cfg.Tools.Allow),
		ToolRunner:    toolrun.NewShell(),
		Cache:         store,
		DefaultModel:  model,
		MaxChainDepth: cfg.MaxChainDepth,
	}, nil
}

// parseVarFlags turns repeated key=value flags into a variable map.
func parseVarFlags(flags []string) (value.Map, error) {
	vars := value.Map{}
	for _, flag := range flags {
		eq := strings.Index(flag, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("bad --var %q, want key=value", flag)
		}
		vars[flag[:eq]] = value.String(flag[eq+1:])
	}
	return vars, nil
}
