package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/binsquare/keyscrub/scrub"
	"github.com/binsquare/keyscrub/secretstore"
	"gopkg.in/yaml.v3"
)

// RulesFile is the YAML form of a scrub configuration plus where migrated
// secrets go. Keep it outside the repository being rewritten: it contains
// the very secrets being removed.
type RulesFile struct {
	scrub.Config `yaml:",inline"`
	Destination  secretstore.Destination `yaml:"destination,omitempty"`
}

// GlobalConfig lists the secret backends available to migrate.
type GlobalConfig struct {
	Backends map[string]secretstore.BackendConfig `yaml:"backends"`
}

var placeholderEnvPattern = regexp.MustCompile(`process\.env\.([A-Za-z_][A-Za-z0-9_]*)`)

// LoadRulesFile reads path, or returns the compiled-in rules when path is
// empty.
func LoadRulesFile(path string) (RulesFile, error) {
	if path == "" {
		return RulesFile{Config: scrub.DefaultConfig()}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RulesFile{}, fmt.Errorf("no rules file found at %s. Run: keyscrub init", path)
		}
		return RulesFile{}, fmt.Errorf("read rules file: %w", err)
	}
	var rf RulesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return RulesFile{}, fmt.Errorf("parse rules file: %w", err)
	}
	rf.fillEnvNames()
	if err := rf.Validate(); err != nil {
		return RulesFile{}, err
	}
	return rf, nil
}

// fillEnvNames derives missing env names from process.env placeholders.
func (rf *RulesFile) fillEnvNames() {
	for i, r := range rf.Rules {
		if r.Env != "" {
			continue
		}
		if m := placeholderEnvPattern.FindStringSubmatch(r.Replacement); m != nil {
			rf.Rules[i].Env = m[1]
		}
	}
}

func (rf RulesFile) Validate() error {
	return rf.Config.Validate()
}

func LoadGlobalConfig(path string) (GlobalConfig, error) {
	if path == "" {
		path = DefaultGlobalConfigPath()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return GlobalConfig{}, fmt.Errorf("no global config found at %s; add a backends: section", path)
		}
		return GlobalConfig{}, fmt.Errorf("read global config: %w", err)
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("parse global config: %w", err)
	}
	if len(cfg.Backends) == 0 {
		return GlobalConfig{}, fmt.Errorf("no backends configured in %s", path)
	}
	return cfg, nil
}

// Backend returns the named backend configuration.
func (g GlobalConfig) Backend(name string) (secretstore.BackendConfig, error) {
	if name == "" {
		return secretstore.BackendConfig{}, errors.New("no destination backend; set destination.backend in the rules file or pass --to")
	}
	cfg, ok := g.Backends[name]
	if !ok {
		return secretstore.BackendConfig{}, fmt.Errorf("no backend named %q configured in %s", name, DefaultGlobalConfigPath())
	}
	return cfg, nil
}

func DefaultGlobalConfigPath() string {
	return filepath.Join(keyscrubHome(), "config.yaml")
}

func DefaultRulesPath() string {
	return filepath.Join(keyscrubHome(), "rules.yaml")
}

func keyscrubHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(string(os.PathSeparator), "unknown", ".keyscrub")
	}
	return filepath.Join(home, ".keyscrub")
}
