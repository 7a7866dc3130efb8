package guard

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/projtrack/projtrack/internal/access"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Config is the static route table the guard evaluates against.
type Config struct {
	LoginRoute   string              `yaml:"login_route"`
	DefaultRoute string              `yaml:"default_route"`
	Protected    []string            `yaml:"protected"`
	RoleRoutes   map[string][]string `yaml:"role_routes"`

	roles map[access.GlobalRole][]string
}

// DefaultConfig returns the built-in route table.
func DefaultConfig() *Config {
	cfg, err := ParseConfig(defaultRoutes)
	if err != nil {
		panic(fmt.Sprintf("guard: built-in routes: %v", err))
	}
	return cfg
}

// LoadConfig reads a route table from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a YAML route table.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing routes: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating routes: %w", err)
	}
	return cfg, nil
}

// Validate checks the table and resolves role names. It must run before the
// config is handed to New.
func (c *Config) Validate() error {
	var errs []string

	if !strings.HasPrefix(c.LoginRoute, "/") {
		errs = append(errs, "login_route must start with /")
	}
	if !strings.HasPrefix(c.DefaultRoute, "/") {
		errs = append(errs, "default_route must start with /")
	}
	if c.LoginRoute != "" && c.LoginRoute == c.DefaultRoute {
		errs = append(errs, "login_route and default_route must differ")
	}
	for _, route := range c.Protected {
		if !strings.HasPrefix(route, "/") {
			errs = append(errs, fmt.Sprintf("protected route %q must start with /", route))
		}
	}

	roles := make(map[access.GlobalRole][]string, len(c.RoleRoutes))
	for name, routes := range c.RoleRoutes {
		role, ok := access.ParseGlobalRole(name)
		if !ok {
			errs = append(errs, fmt.Sprintf("role_routes: unknown role %q", name))
			continue
		}
		for _, route := range routes {
			if !strings.HasPrefix(route, "/") {
				errs = append(errs, fmt.Sprintf("role_routes.%s: route %q must start with /", name, route))
			}
		}
		roles[role] = append(roles[role], routes...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	c.roles = roles
	return nil
}

// IsProtected reports whether path needs an authenticated identity.
func (c *Config) IsProtected(path string) bool {
	return matchesAny(c.Protected, path)
}

// Allows reports whether role may visit path. Unknown roles may visit nothing.
func (c *Config) Allows(role access.GlobalRole, path string) bool {
	return matchesAny(c.roles[role], path)
}

// matchesAny applies the table's matching rule: "/" matches only itself,
// every other entry matches by prefix.
func matchesAny(routes []string, path string) bool {
	for _, route := range routes {
		if route == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, route) {
			return true
		}
	}
	return false
}
