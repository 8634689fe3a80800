package main

import (
	"github.com/SGK112/ai-website-builder-sub004/config"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider/claude"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider/gemini"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider/openai"
)

// buildRegistry registers every known adapter. Adapters are constructed on
// first use; an entry without a key stays registered but is never chosen.
func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	entries := []struct {
		id   string
		caps provider.Capabilities
		pc   config.ProviderConfig
		new  func(provider.Config) provider.Provider
	}{
		{claude.Name, claude.Capabilities, cfg.Claude, claude.New},
		{openai.Name, openai.Capabilities, cfg.OpenAI, openai.New},
		{gemini.Name, gemini.Capabilities, cfg.Gemini, gemini.New},
	}

	reg := provider.NewRegistry()
	for _, e := range entries {
		pcfg := provider.Config{APIKey: e.pc.APIKey, BaseURL: e.pc.BaseURL, Model: e.pc.Model}
		newFn := e.new
		err := reg.Register(&provider.Entry{
			ID:                 e.id,
			Enabled:            e.pc.Enabled,
			CredentialsPresent: e.pc.APIKey != "",
			Capabilities:       e.caps,
			Factory:            func() provider.Provider { return newFn(pcfg) },
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}
