package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mcpbridge/mcpbridge/internal/secret"
)

// InitViper initializes Viper with the configuration file and environment
// variables, searching standard locations (explicit .yaml/.yml extension
// only, so Viper never matches the binary itself in the working directory).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("mcpbridge")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MCPBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".mcpbridge")}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "mcpbridge"))
		}
	} else {
		paths = append(paths, "/etc/mcpbridge")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcpbridge"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// fileConfig is the YAML-shaped counterpart to a Builder invocation.
// Durations are strings here (YAML-friendly) and parsed in toBuilder.
type fileConfig struct {
	Backend  BackendConfig   `mapstructure:"backend"`
	Frontend *FrontendConfig `mapstructure:"frontend"`

	RequestTimeout   string `mapstructure:"request_timeout"`
	ConnectTimeout   string `mapstructure:"connect_timeout"`
	IntrospectBudget string `mapstructure:"introspect_budget"`
	ShutdownGrace    string `mapstructure:"shutdown_grace"`
	MaxRequestSize   int    `mapstructure:"max_request_size"`
	MaxResponseSize  int    `mapstructure:"max_response_size"`

	AllowPrivateHosts bool     `mapstructure:"allow_private_hosts"`
	CommandAllowlist  []string `mapstructure:"command_allowlist"`
	PermissiveCommand bool     `mapstructure:"permissive_command"`

	AuthJwt     *JwtConfig    `mapstructure:"auth_jwt"`
	AuthApiKey  *ApiKeyConfig `mapstructure:"auth_api_key"`
	BearerToken string        `mapstructure:"bearer_token"`
}

// LoadBuilder reads the configuration file (if any) plus environment
// overrides and returns a *Builder pre-populated from it. The caller is
// free to apply further With* overrides (e.g. from CLI flags) before
// calling Build.
func LoadBuilder() (*Builder, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var fc fileConfig
	if err := viper.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return fc.toBuilder()
}

// ConfigFileUsed returns the path of the config file Viper loaded, or "" in
// environment-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

func (fc *fileConfig) toBuilder() (*Builder, error) {
	b := NewBuilder()

	b.Backend(fc.Backend)
	if fc.Frontend != nil {
		b.Frontend(*fc.Frontend)
	}

	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: request_timeout: %w", err)
		}
		b.RequestTimeout(d)
	}
	if fc.ConnectTimeout != "" {
		d, err := time.ParseDuration(fc.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: connect_timeout: %w", err)
		}
		b.ConnectTimeout(d)
	}
	if fc.IntrospectBudget != "" {
		d, err := time.ParseDuration(fc.IntrospectBudget)
		if err != nil {
			return nil, fmt.Errorf("config: introspect_budget: %w", err)
		}
		b.IntrospectBudget(d)
	}
	if fc.ShutdownGrace != "" {
		d, err := time.ParseDuration(fc.ShutdownGrace)
		if err != nil {
			return nil, fmt.Errorf("config: shutdown_grace: %w", err)
		}
		b.ShutdownGrace(d)
	}
	if fc.MaxRequestSize > 0 {
		b.MaxRequestSize(fc.MaxRequestSize)
	}
	if fc.MaxResponseSize > 0 {
		b.MaxResponseSize(fc.MaxResponseSize)
	}

	b.AllowPrivateHosts(fc.AllowPrivateHosts)
	if len(fc.CommandAllowlist) > 0 {
		b.CommandAllowlist(fc.CommandAllowlist)
	}
	b.PermissiveCommand(fc.PermissiveCommand)

	if fc.AuthJwt != nil {
		b.AuthJwt(*fc.AuthJwt)
	}
	if fc.AuthApiKey != nil {
		b.AuthApiKey(*fc.AuthApiKey)
	}
	if fc.BearerToken != "" {
		b.BearerToken(secret.New(fc.BearerToken))
	}

	return b, nil
}
