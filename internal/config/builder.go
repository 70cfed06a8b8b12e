package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
	"github.com/mcpbridge/mcpbridge/internal/secret"
)

// defaultCommandAllowlist is the conservative default set of Stdio backend
// commands the Builder accepts when the caller doesn't override it.
var defaultCommandAllowlist = []string{"node", "python3", "python", "npx", "uvx"}

// Builder is the fluent configuration object for assembling a Config. Every
// With* method returns the receiver so calls chain; Build validates the
// accumulated draft and returns an immutable *Config or the first policy
// violation encountered.
type Builder struct {
	draft Config
	errs  []error
}

// NewBuilder starts a Builder pre-loaded with documented defaults.
func NewBuilder() *Builder {
	budgets := policy.DefaultBudgets()
	return &Builder{
		draft: Config{
			RequestTimeout:    budgets.RequestTimeout,
			ConnectTimeout:    budgets.ConnectTimeout,
			MaxRequestSize:    int(budgets.MaxRequestBody),
			MaxResponseSize:   int(budgets.MaxResponseBody),
			IntrospectBudget:  budgets.IntrospectBudget,
			ShutdownGrace:     30 * time.Second,
			CommandAllowlist:  append([]string(nil), defaultCommandAllowlist...),
		},
	}
}

// Backend selects and configures the backend transport. Required.
func (b *Builder) Backend(cfg BackendConfig) *Builder {
	b.draft.Backend = cfg
	return b
}

// Frontend selects and configures the frontend transport. Required for
// run_serve; omit it for an inspect-only Config.
func (b *Builder) Frontend(cfg FrontendConfig) *Builder {
	b.draft.Frontend = &cfg
	return b
}

// RequestTimeout overrides the per-request end-to-end budget.
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.draft.RequestTimeout = d
	return b
}

// ConnectTimeout overrides the initial connect budget.
func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	b.draft.ConnectTimeout = d
	return b
}

// MaxRequestSize overrides the frontend ingress size bound.
func (b *Builder) MaxRequestSize(n int) *Builder {
	b.draft.MaxRequestSize = n
	return b
}

// MaxResponseSize overrides the backend ingress size bound.
func (b *Builder) MaxResponseSize(n int) *Builder {
	b.draft.MaxResponseSize = n
	return b
}

// IntrospectBudget overrides the introspection wall-clock budget.
func (b *Builder) IntrospectBudget(d time.Duration) *Builder {
	b.draft.IntrospectBudget = d
	return b
}

// ShutdownGrace overrides the graceful-shutdown grace period.
func (b *Builder) ShutdownGrace(d time.Duration) *Builder {
	b.draft.ShutdownGrace = d
	return b
}

// AllowPrivateHosts lifts the SSRF guard's private/loopback/metadata
// restrictions. Development escape hatch only.
func (b *Builder) AllowPrivateHosts(allow bool) *Builder {
	b.draft.AllowPrivateHosts = allow
	return b
}

// CommandAllowlist replaces the default Stdio command allowlist with
// commands; the default entries are not kept alongside them.
func (b *Builder) CommandAllowlist(commands []string) *Builder {
	b.draft.CommandAllowlist = commands
	return b
}

// PermissiveCommand disables the Stdio command allowlist entirely.
// Development escape hatch; Build accepts it in every build and does
// not reject permissive mode.
func (b *Builder) PermissiveCommand(permissive bool) *Builder {
	b.draft.PermissiveCommand = permissive
	return b
}

// AuthJwt attaches a JWT authentication validator to the HTTP frontend.
func (b *Builder) AuthJwt(cfg JwtConfig) *Builder {
	b.draft.Jwt = &cfg
	return b
}

// AuthApiKey attaches an API-key authentication validator to the HTTP
// frontend.
func (b *Builder) AuthApiKey(cfg ApiKeyConfig) *Builder {
	b.draft.ApiKey = &cfg
	return b
}

// BearerToken attaches a bearer token to outgoing HTTP/WebSocket backend
// requests.
func (b *Builder) BearerToken(token secret.String) *Builder {
	b.draft.BearerToken = token
	return b
}

// Build validates the accumulated configuration end-to-end and returns
// either a validated *Config or the first error encountered. It never
// mutates global state; every check runs against the local draft.
func (b *Builder) Build() (*Config, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(&b.draft.Backend); err != nil {
		return nil, fmt.Errorf("config: backend: %w", formatValidationErrors(err))
	}
	if err := validateBackendVariant(&b.draft.Backend, v); err != nil {
		return nil, fmt.Errorf("config: backend: %w", err)
	}

	if b.draft.Frontend != nil {
		if err := v.Struct(b.draft.Frontend); err != nil {
			return nil, fmt.Errorf("config: frontend: %w", formatValidationErrors(err))
		}
		if err := validateFrontendVariant(b.draft.Frontend, v); err != nil {
			return nil, fmt.Errorf("config: frontend: %w", err)
		}
	}

	if b.draft.RequestTimeout <= 0 {
		return nil, fmt.Errorf("config: request_timeout must be positive")
	}
	if b.draft.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("config: connect_timeout must be positive")
	}
	if b.draft.MaxRequestSize <= 0 || b.draft.MaxResponseSize <= 0 {
		return nil, fmt.Errorf("config: max_request_size/max_response_size must be positive")
	}

	if b.draft.PermissiveCommand {
		// Permissive mode is a development-only escape hatch; enforcing
		// "production builds reject it" is left to the caller's deployment
		// posture (e.g. an environment check in the CLI), since the Builder
		// itself has no concept of environment.
	}

	if err := validatePolicyConsistency(&b.draft); err != nil {
		return nil, err
	}

	out := b.draft
	return &out, nil
}

// validateBackendVariant checks that exactly the Kind-matching variant is
// populated and runs its own struct-tag validation.
func validateBackendVariant(cfg *BackendConfig, v *validator.Validate) error {
	switch cfg.Kind {
	case KindStdio:
		if cfg.Stdio == nil {
			return fmt.Errorf("kind %q requires a stdio block", cfg.Kind)
		}
		return v.Struct(cfg.Stdio)
	case KindTcp:
		if cfg.Tcp == nil {
			return fmt.Errorf("kind %q requires a tcp block", cfg.Kind)
		}
		return v.Struct(cfg.Tcp)
	case KindUnix:
		if cfg.Unix == nil {
			return fmt.Errorf("kind %q requires a unix block", cfg.Kind)
		}
		return v.Struct(cfg.Unix)
	case KindHttp:
		if cfg.Http == nil {
			return fmt.Errorf("kind %q requires an http block", cfg.Kind)
		}
		return v.Struct(cfg.Http)
	case KindWebSocket:
		if cfg.WebSocket == nil {
			return fmt.Errorf("kind %q requires a websocket block", cfg.Kind)
		}
		return v.Struct(cfg.WebSocket)
	default:
		return fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func validateFrontendVariant(cfg *FrontendConfig, v *validator.Validate) error {
	switch cfg.Kind {
	case KindStdio:
		if cfg.Stdio == nil {
			cfg.Stdio = &StdioFrontendConfig{}
		}
		return nil
	case KindTcp:
		if cfg.Tcp == nil {
			return fmt.Errorf("kind %q requires a tcp block", cfg.Kind)
		}
		return v.Struct(cfg.Tcp)
	case KindUnix:
		if cfg.Unix == nil {
			return fmt.Errorf("kind %q requires a unix block", cfg.Kind)
		}
		return v.Struct(cfg.Unix)
	case KindHttp:
		if cfg.Http == nil {
			return fmt.Errorf("kind %q requires an http block", cfg.Kind)
		}
		if cfg.Http.EndpointPath == "" {
			cfg.Http.EndpointPath = "/mcp"
		}
		return v.Struct(cfg.Http)
	case KindWebSocket:
		if cfg.WebSocket == nil {
			return fmt.Errorf("kind %q requires a websocket block", cfg.Kind)
		}
		return v.Struct(cfg.WebSocket)
	default:
		return fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// validatePolicyConsistency runs the Security & Policy Layer checks that
// don't require a live connection: Stdio command allowlist membership and
// the syntactic half of URL/host validation (scheme, literal-IP, port).
// DNS-dependent rebinding checks happen at connect time instead, since a
// build-time DNS lookup would make Build() flaky and non-hermetic.
func validatePolicyConsistency(cfg *Config) error {
	hostPolicy := policy.NewHostPolicy(cfg.AllowPrivateHosts)

	switch cfg.Backend.Kind {
	case KindStdio:
		allowlist := policy.NewCommandAllowlist(cfg.CommandAllowlist, cfg.PermissiveCommand)
		if err := allowlist.Check(cfg.Backend.Stdio.Command); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	case KindTcp:
		if _, _, err := hostPolicy.ValidateHostPort(fmt.Sprintf("%s:%d", cfg.Backend.Tcp.Host, cfg.Backend.Tcp.Port)); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	case KindHttp:
		if _, err := hostPolicy.ValidateURL(cfg.Backend.Http.URL); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	case KindWebSocket:
		if _, err := hostPolicy.ValidateURL(wsToHTTP(cfg.Backend.WebSocket.URL)); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	case KindUnix:
		if _, err := policy.CanonicalizePath(cfg.Backend.Unix.Path, cfg.Backend.Unix.Root); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if cfg.Frontend != nil && cfg.Frontend.Kind == KindUnix {
		if _, err := policy.CanonicalizePath(cfg.Frontend.Unix.Path, cfg.Frontend.Unix.Root); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	return nil
}

// wsToHTTP rewrites a ws/wss URL to its http/https equivalent so HostPolicy's
// scheme check (which only knows http/https) can validate it, matching the
// rewrite transport.DialWebSocket performs on the same kind of URL.
func wsToHTTP(raw string) string {
	switch {
	case len(raw) >= 5 && raw[:5] == "ws://":
		return "http://" + raw[5:]
	case len(raw) >= 6 && raw[:6] == "wss://":
		return "https://" + raw[6:]
	default:
		return raw
	}
}
