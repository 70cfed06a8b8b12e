// Package config defines the discriminated-union configuration types for
// both sides of the proxy (BackendConfig/FrontendConfig), the fluent
// Builder that validates them into an immutable Config, and the
// Orchestrator that drives run_inspect/run_serve on top of a built Config.
package config

import (
	"time"

	"github.com/mcpbridge/mcpbridge/internal/secret"
)

// TransportKind discriminates BackendConfig and FrontendConfig.
type TransportKind string

const (
	KindStdio     TransportKind = "stdio"
	KindTcp       TransportKind = "tcp"
	KindUnix      TransportKind = "unix"
	KindHttp      TransportKind = "http"
	KindWebSocket TransportKind = "websocket"
)

// StdioBackendConfig spawns a subprocess and speaks newline-delimited JSON
// over its stdin/stdout.
type StdioBackendConfig struct {
	Command      string   `yaml:"command" mapstructure:"command" validate:"required"`
	Args         []string `yaml:"args" mapstructure:"args"`
	Env          []string `yaml:"env" mapstructure:"env"`
	Cwd          string   `yaml:"cwd" mapstructure:"cwd"`
	ExtraEnvKeys []string `yaml:"extra_env_keys" mapstructure:"extra_env_keys"`
}

// TcpBackendConfig dials a bare TCP host:port and speaks newline-delimited
// JSON over the byte stream.
type TcpBackendConfig struct {
	Host string `yaml:"host" mapstructure:"host" validate:"required"`
	Port int    `yaml:"port" mapstructure:"port" validate:"required,gt=0,lte=65535"`
}

// UnixBackendConfig dials a Unix domain socket, canonicalized against Root.
type UnixBackendConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
	Root string `yaml:"root" mapstructure:"root" validate:"required"`
}

// HttpBackendConfig speaks request/response JSON plus SSE push against a
// Streamable-HTTP MCP server.
type HttpBackendConfig struct {
	URL         string            `yaml:"url" mapstructure:"url" validate:"required,url"`
	BearerToken secret.String     `yaml:"bearer_token" mapstructure:"bearer_token"`
	Headers     map[string]string `yaml:"headers" mapstructure:"headers"`
}

// WebSocketBackendConfig speaks one JSON-RPC message per text frame.
type WebSocketBackendConfig struct {
	URL         string            `yaml:"url" mapstructure:"url" validate:"required"`
	BearerToken secret.String     `yaml:"bearer_token" mapstructure:"bearer_token"`
	Headers     map[string]string `yaml:"headers" mapstructure:"headers"`
}

// BackendConfig selects and configures the outbound MCP server this proxy
// forwards to. Exactly one of the Kind-matching fields is populated.
type BackendConfig struct {
	Kind TransportKind `yaml:"kind" mapstructure:"kind" validate:"required,oneof=stdio tcp unix http websocket"`

	Stdio     *StdioBackendConfig     `yaml:"stdio,omitempty" mapstructure:"stdio"`
	Tcp       *TcpBackendConfig       `yaml:"tcp,omitempty" mapstructure:"tcp"`
	Unix      *UnixBackendConfig      `yaml:"unix,omitempty" mapstructure:"unix"`
	Http      *HttpBackendConfig      `yaml:"http,omitempty" mapstructure:"http"`
	WebSocket *WebSocketBackendConfig `yaml:"websocket,omitempty" mapstructure:"websocket"`
}

// StdioFrontendConfig listens on this process's own stdin/stdout.
type StdioFrontendConfig struct{}

// TcpFrontendConfig binds a TCP listener for frontend clients.
type TcpFrontendConfig struct {
	BindAddr string `yaml:"bind_addr" mapstructure:"bind_addr" validate:"required"`
}

// UnixFrontendConfig binds a Unix domain socket listener.
type UnixFrontendConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
	Root string `yaml:"root" mapstructure:"root" validate:"required"`
}

// HttpFrontendConfig binds an HTTP listener exposing the MCP Streamable
// HTTP surface.
type HttpFrontendConfig struct {
	BindAddr       string   `yaml:"bind_addr" mapstructure:"bind_addr" validate:"required"`
	EndpointPath   string   `yaml:"endpoint_path" mapstructure:"endpoint_path"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// WebSocketFrontendConfig binds a WebSocket listener.
type WebSocketFrontendConfig struct {
	BindAddr string `yaml:"bind_addr" mapstructure:"bind_addr" validate:"required"`
	Path     string `yaml:"path" mapstructure:"path"`
}

// FrontendConfig selects and configures the listening side presented to
// MCP clients. Exactly one of the Kind-matching fields is populated.
type FrontendConfig struct {
	Kind TransportKind `yaml:"kind" mapstructure:"kind" validate:"required,oneof=stdio tcp unix http websocket"`

	Stdio     *StdioFrontendConfig     `yaml:"stdio,omitempty" mapstructure:"stdio"`
	Tcp       *TcpFrontendConfig       `yaml:"tcp,omitempty" mapstructure:"tcp"`
	Unix      *UnixFrontendConfig      `yaml:"unix,omitempty" mapstructure:"unix"`
	Http      *HttpFrontendConfig      `yaml:"http,omitempty" mapstructure:"http"`
	WebSocket *WebSocketFrontendConfig `yaml:"websocket,omitempty" mapstructure:"websocket"`
}

// JwtConfig configures bearer JWT verification for the HTTP frontend.
type JwtConfig struct {
	Secret   secret.String `yaml:"secret" mapstructure:"secret"`
	Issuer   string        `yaml:"issuer" mapstructure:"issuer"`
	Audience string        `yaml:"audience" mapstructure:"audience"`
}

// ApiKeyConfig configures header-based API key authentication for the HTTP
// frontend. KeyHashes holds the accepted keys' hashes: argon2id (PHC
// format) or hex SHA-256, bare or "sha256:"-prefixed.
type ApiKeyConfig struct {
	HeaderName string   `yaml:"header_name" mapstructure:"header_name"`
	KeyHashes  []string `yaml:"key_hashes" mapstructure:"key_hashes"`
}

// Config is the immutable, validated output of Builder.Build. Every field
// has already passed struct-tag and cross-field validation; nothing
// downstream re-validates it.
type Config struct {
	Backend  BackendConfig
	Frontend *FrontendConfig // nil when only run_inspect will be used

	RequestTimeout  time.Duration
	ConnectTimeout  time.Duration
	MaxRequestSize  int
	MaxResponseSize int
	IntrospectBudget time.Duration
	ShutdownGrace   time.Duration

	AllowPrivateHosts bool
	CommandAllowlist  []string
	PermissiveCommand bool

	Jwt        *JwtConfig
	ApiKey     *ApiKeyConfig
	BearerToken secret.String
}
