// Package providers builds the model registry from configuration.
package providers

import (
	"fmt"
	"net/http"
	"time"

	"compliance-backend/internal/llm"
	"compliance-backend/internal/llm/gemini"
	"compliance-backend/internal/llm/openai"
	"compliance-backend/internal/shared/config"
)

const githubAPIVersion = "2022-11-28"

const defaultGithubEndpoint = "https://models.github.ai/inference/chat/completions"

// Credentials are read once at startup and passed down.
type Credentials struct {
	GroqAPIKey   string
	GithubPAT    string
	OpenAIAPIKey string
	Gemini       *gemini.Client
}

// Build returns the registry in configured order plus the batch rotation.
func Build(models config.ModelsConfig, creds Credentials, timeout time.Duration) (*llm.Registry, []llm.Provider, error) {
	groq := openai.NewGroq(creds.GroqAPIKey, timeout)
	oa := openai.NewClient("openai", openai.OpenAIBaseURL, creds.OpenAIAPIKey, timeout)
	httpClient := &http.Client{Timeout: timeout}

	var list []llm.Provider
	for _, entry := range models.Providers {
		if entry.Disabled {
			continue
		}
		switch entry.Kind {
		case config.KindGroq:
			list = append(list, &llm.DirectAPI{ProviderName: entry.Name, ModelID: entry.Model, Client: groq, Timeout: timeout})
		case config.KindOpenAI:
			list = append(list, &llm.DirectAPI{ProviderName: entry.Name, ModelID: entry.Model, Client: oa, Timeout: timeout})
		case config.KindGemini:
			var client llm.APIClient
			if creds.Gemini != nil {
				client = creds.Gemini
			}
			list = append(list, &llm.DirectAPI{ProviderName: entry.Name, ModelID: entry.Model, Client: client, Timeout: timeout})
		case config.KindGithub:
			endpoint := entry.Endpoint
			if endpoint == "" {
				endpoint = defaultGithubEndpoint
			}
			list = append(list, &llm.HTTPInference{
				ProviderName: entry.Name,
				ModelID:      entry.Model,
				Endpoint:     endpoint,
				Token:        creds.GithubPAT,
				Headers:      map[string]string{"X-GitHub-Api-Version": githubAPIVersion},
				HTTPClient:   httpClient,
				Timeout:      timeout,
			})
		default:
			return nil, nil, fmt.Errorf("provider %q: unknown kind %q", entry.Name, entry.Kind)
		}
	}
	registry := llm.NewRegistry(list...)

	var batch []llm.Provider
	for _, name := range models.BatchModels {
		if p, ok := registry.Lookup(name); ok {
			batch = append(batch, p)
		}
	}
	if len(batch) == 0 {
		batch = registry.Providers()
	}
	return registry, batch, nil
}
