package backend

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/timvw/reverse-turing/internal/model"
	ppotel "github.com/timvw/reverse-turing/internal/otel"
	"github.com/timvw/reverse-turing/internal/prompt"
)

// HumanProvider is the selector for an operator at the console.
const HumanProvider = "human"

// Selector identifies a participant: "<provider>::<credential>" or "human".
type Selector struct {
	Provider   string
	Credential string
}

// ParseSelector parses a participant selector. The credential part is
// optional; when missing it is resolved from the environment later.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, &ConfigError{Reason: "empty participant selector"}
	}
	provider, credential, _ := strings.Cut(s, "::")
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return Selector{}, &ConfigError{Reason: fmt.Sprintf("selector %q has no provider", redact(s))}
	}
	return Selector{Provider: provider, Credential: strings.TrimSpace(credential)}, nil
}

// String returns the provider name. The credential is never included.
func (s Selector) String() string { return s.Provider }

// ConfigError is a construction-time failure. It is always fatal and is
// reported before any turn runs.
type ConfigError struct {
	Role     model.Role
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Role != "" && e.Provider != "":
		return fmt.Sprintf("%s %q: %s", e.Role, e.Provider, e.Reason)
	case e.Role != "":
		return fmt.Sprintf("%s: %s", e.Role, e.Reason)
	default:
		return e.Reason
	}
}

// ProviderSettings overrides the built-in defaults of one provider.
type ProviderSettings struct {
	Model     string
	TestModel string
	BaseURL   string
}

// Options configures the construction of one participant.
type Options struct {
	Role model.Role
	// TestMode selects the cheap model tier.
	TestMode bool
	// Evasion switches the interrogated system prompt.
	Evasion bool
	// Rounds is the conversation length, baked into the interrogator prompt.
	Rounds    int
	MaxTokens int64
	Timeout   time.Duration
	Policy    ErrorPolicy
	// Providers holds per-provider overrides keyed by provider name.
	Providers map[string]ProviderSettings
	// Asker is required for the human participant.
	Asker   Asker
	Metrics *ppotel.Metrics
	// Getenv resolves credentials. Defaults to os.Getenv.
	Getenv func(string) string
}

// completerConfig is what a provider constructor receives.
type completerConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type providerSpec struct {
	name            string
	productionModel string
	// testModel is empty for providers without a cheap tier.
	testModel          string
	credentialEnv      []string
	optionalCredential bool
	build              func(ctx context.Context, cfg completerConfig) (Completer, error)
}

var providers = map[string]providerSpec{
	"anthropic": {
		name:            "anthropic",
		productionModel: "claude-3-5-sonnet-20240620",
		testModel:       "claude-3-haiku-20240307",
		credentialEnv:   []string{"ANTHROPIC_API_KEY"},
		build: func(_ context.Context, cfg completerConfig) (Completer, error) {
			return NewAnthropicCompleter(AnthropicConfig{
				BaseURL:      cfg.BaseURL,
				APIKey:       cfg.APIKey,
				Model:        cfg.Model,
				ExtraHeaders: azureHeaders(cfg),
			}), nil
		},
	},
	"openai": {
		name:            "openai",
		productionModel: "gpt-4o",
		testModel:       "gpt-4o-mini",
		credentialEnv:   []string{"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY"},
		build: func(_ context.Context, cfg completerConfig) (Completer, error) {
			return NewOpenAICompleter(OpenAIConfig{
				BaseURL:      cfg.BaseURL,
				APIKey:       cfg.APIKey,
				Model:        cfg.Model,
				ExtraHeaders: azureHeaders(cfg),
			}), nil
		},
	},
	"gemini": {
		name:            "gemini",
		productionModel: "gemini-1.5-pro",
		testModel:       "gemini-1.5-flash",
		credentialEnv:   []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		build: func(ctx context.Context, cfg completerConfig) (Completer, error) {
			return NewGeminiCompleter(ctx, GeminiConfig{
				BaseURL: cfg.BaseURL,
				APIKey:  cfg.APIKey,
				Model:   cfg.Model,
			})
		},
	},
	"llama": {
		name:               "llama",
		productionModel:    "meta-llama/Meta-Llama-3.1-8B-Instruct",
		credentialEnv:      []string{"HF_TOKEN"},
		optionalCredential: true,
		build: func(_ context.Context, cfg completerConfig) (Completer, error) {
			return NewLlamaCompleter(LlamaConfig{
				BaseURL: cfg.BaseURL,
				APIKey:  cfg.APIKey,
				Model:   cfg.Model,
			}), nil
		},
	},
}

// aliases maps alternative selector names onto provider names.
var aliases = map[string]string{
	"claude": "anthropic",
	"gpt":    "openai",
	"google": "gemini",
}

// Providers returns the supported selector names, "human" included.
func Providers() []string {
	names := []string{HumanProvider}
	for name := range providers {
		names = append(names, name)
	}
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// New builds the participant described by sel. Every failure is a
// *ConfigError.
func New(ctx context.Context, sel Selector, opts Options) (Backend, error) {
	catalog := prompt.New(opts.Rounds, opts.Evasion)

	if sel.Provider == HumanProvider {
		if err := checkHuman(opts); err != nil {
			return nil, err
		}
		return NewHuman(HumanConfig{
			Catalog: catalog,
			Asker:   opts.Asker,
			Policy:  opts.Policy,
			Metrics: opts.Metrics,
		}), nil
	}

	spec, apiKey, err := resolve(sel, opts)
	if err != nil {
		return nil, err
	}

	settings := opts.Providers[spec.name]
	completer, err := spec.build(ctx, completerConfig{
		APIKey:  apiKey,
		Model:   spec.resolveModel(opts.TestMode, settings),
		BaseURL: settings.BaseURL,
	})
	if err != nil {
		return nil, &ConfigError{Role: opts.Role, Provider: spec.name, Reason: err.Error()}
	}

	return NewParticipant(completer, ParticipantConfig{
		Role:      opts.Role,
		Catalog:   catalog,
		MaxTokens: opts.MaxTokens,
		Timeout:   opts.Timeout,
		Policy:    opts.Policy,
		Metrics:   opts.Metrics,
	}), nil
}

// Validate runs the checks of New without building a client: the provider
// lookup, the role restrictions and the credential resolution. It returns
// a *ConfigError or nil.
func Validate(sel Selector, opts Options) error {
	if sel.Provider == HumanProvider {
		return checkHuman(opts)
	}
	_, _, err := resolve(sel, opts)
	return err
}

func checkHuman(opts Options) error {
	if opts.Role != model.RoleInterrogated {
		return &ConfigError{Role: opts.Role, Provider: HumanProvider, Reason: ErrHumanInterrogator.Error()}
	}
	if opts.Asker == nil {
		return &ConfigError{Role: opts.Role, Provider: HumanProvider, Reason: "no operator input available"}
	}
	return nil
}

// resolve finds the provider spec for sel and its API key.
func resolve(sel Selector, opts Options) (providerSpec, string, error) {
	name := sel.Provider
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	spec, ok := providers[name]
	if !ok {
		return providerSpec{}, "", &ConfigError{
			Role:     opts.Role,
			Provider: sel.Provider,
			Reason:   fmt.Sprintf("unknown provider (supported: %s)", strings.Join(Providers(), ", ")),
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	apiKey := sel.Credential
	for _, key := range spec.credentialEnv {
		if apiKey != "" {
			break
		}
		apiKey = getenv(key)
	}
	if apiKey == "" && !spec.optionalCredential {
		return providerSpec{}, "", &ConfigError{
			Role:     opts.Role,
			Provider: spec.name,
			Reason:   fmt.Sprintf("no credential: use %s::<API_KEY> or set %s", spec.name, strings.Join(spec.credentialEnv, " or ")),
		}
	}
	return spec, apiKey, nil
}

// resolveModel picks the model for the requested tier. Providers without a
// cheap tier use the production model in test mode.
func (s providerSpec) resolveModel(testMode bool, settings ProviderSettings) string {
	if testMode {
		if settings.TestModel != "" {
			return settings.TestModel
		}
		if s.testModel != "" {
			return s.testModel
		}
	}
	if settings.Model != "" {
		return settings.Model
	}
	return s.productionModel
}

// azureHeaders adds the "api-key" header Azure endpoints expect next to the
// SDK's own auth header.
func azureHeaders(cfg completerConfig) map[string]string {
	if !IsAzureEndpoint(cfg.BaseURL) {
		return nil
	}
	return map[string]string{"api-key": cfg.APIKey}
}

// IsAzureEndpoint reports whether url points at Azure.
func IsAzureEndpoint(url string) bool {
	return strings.Contains(url, ".azure.com") || strings.Contains(url, ".azure.us")
}

// redact hides the credential part of a selector.
func redact(s string) string {
	if provider, _, ok := strings.Cut(s, "::"); ok {
		return provider + "::***"
	}
	return s
}
