// Package config loads and validates the ovpncm TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/scheimong/openvpn-cred-management/scripts"
)

// ErrNoProfile reports that neither the CLI nor the config selects a profile.
var ErrNoProfile = errors.New("no profile specified")

// Packaging configures the `user package` pipeline for one profile.
type Packaging struct {
	// SkelDir is the skeleton directory included in every package,
	// resolved against the config file's directory when relative.
	SkelDir string `toml:"skel-dir"`

	// SkelMapScripts run in order on a temporary copy of the skeleton;
	// the skeleton directory itself is never modified.
	SkelMapScripts []string `toml:"skel-map-scripts"`

	// CertSubpath and KeySubpath locate the user's credentials inside the
	// package, relative to the skeleton root.
	CertSubpath string `toml:"cert-subpath"`
	KeySubpath  string `toml:"key-subpath"`
}

// Profile is one named PKI deployment.
type Profile struct {
	Name          string `toml:"name"`
	EasyRSAPKIDir string `toml:"easy-rsa-pki-dir"`

	// Packaging is optional; without it `user package` is rejected.
	Packaging *Packaging `toml:"packaging"`

	// PostActionScripts maps an action kind key to the scripts run after
	// that action, in order, in the operator's working directory.
	PostActionScripts map[string][]string `toml:"post-action-scripts"`
}

// Config is the whole configuration file.
type Config struct {
	EasyRSAPath    string    `toml:"easy-rsa-path"`
	DefaultProfile string    `toml:"default-profile"`
	Profiles       []Profile `toml:"profile"`

	// Dir is the directory containing the config file; relative paths in
	// the config resolve against it.
	Dir string `toml:"-"`
}

// DefaultPath returns the per-user default config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine the user config directory: %w", err)
	}
	return filepath.Join(base, "openvpn-cred-management", "config.toml"), nil
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.EasyRSAPath == "" {
		return errors.New("easy-rsa-path is not set")
	}
	if c.DefaultProfile != "" {
		if _, err := c.find(c.DefaultProfile); err != nil {
			return fmt.Errorf("default-profile %q does not reference a known profile", c.DefaultProfile)
		}
	}
	for i := range c.Profiles {
		if err := c.Profiles[i].validate(); err != nil {
			return fmt.Errorf("profile %d: %w", i+1, err)
		}
	}
	return nil
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return errors.New("name is not set")
	}
	if p.EasyRSAPKIDir == "" {
		return errors.New("easy-rsa-pki-dir is not set")
	}
	if pkg := p.Packaging; pkg != nil {
		if pkg.SkelDir == "" {
			return errors.New("packaging.skel-dir is not set")
		}
		for _, subpath := range []string{pkg.CertSubpath, pkg.KeySubpath} {
			if subpath == "" {
				return errors.New("packaging cert-subpath and key-subpath must be set")
			}
			// IsLocal also rejects ".." components that would escape the
			// per-user package directory.
			if !filepath.IsLocal(subpath) {
				return fmt.Errorf("packaging subpath %q must stay inside the package directory", subpath)
			}
		}
	}
	for key := range p.PostActionScripts {
		if _, err := scripts.ParseKind(key); err != nil {
			return fmt.Errorf("post-action-scripts: %w", err)
		}
	}
	return nil
}

// GetProfile returns the profile selected by name, falling back to the
// configured default.
func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" {
		return nil, ErrNoProfile
	}
	return c.find(name)
}

func (c *Config) find(name string) (*Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("cannot find a profile named %q", name)
}

// PKIDir resolves the profile's PKI directory against the config directory.
func (c *Config) PKIDir(p *Profile) string {
	return c.resolve(p.EasyRSAPKIDir)
}

// SkelDir resolves the profile's skeleton directory against the config
// directory.
func (c *Config) SkelDir(p *Profile) string {
	return c.resolve(p.Packaging.SkelDir)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// ScriptsMap converts the profile's script table into typed form. The keys
// were validated at load time; unknown ones cannot reach this point.
func (p *Profile) ScriptsMap() scripts.Map {
	m := make(scripts.Map, len(p.PostActionScripts))
	for key, bodies := range p.PostActionScripts {
		kind, err := scripts.ParseKind(key)
		if err != nil {
			continue
		}
		m[kind] = bodies
	}
	return m
}
