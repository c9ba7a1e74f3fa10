package fedround

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
	"github.com/absmach/fedround/runner"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "FL_"

type Config struct {
	Run   fl.RunConfig     `toml:"run"   yaml:"run"`
	Sweep runner.SweepPlan `toml:"sweep" yaml:"sweep"`
}

// LoadConfig builds the configuration in three layers: built-in defaults,
// FL_ prefixed environment variables, then the file at path when path is not
// empty. Keys present in the file win. The file format follows its
// extension: .toml, .yaml or .yml.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{
		Run:   fl.DefaultRunConfig(),
		Sweep: runner.DefaultSweepPlan(),
	}
	if err := env.ParseWithOptions(&cfg.Run, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if path != "" {
		if err := cfg.load(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.normalise(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		tree, err := toml.Load(string(data))
		if err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
		if err := tree.Unmarshal(c); err != nil {
			return fmt.Errorf("error unmarshaling config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error unmarshaling config: %w", err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", fl.ErrConfiguration, ext)
	}

	return nil
}

func (c *Config) normalise() error {
	run, err := c.Run.Validate()
	if err != nil {
		return err
	}
	kind, err := model.ParseKind(run.Model)
	if err != nil {
		return err
	}
	run.Model = string(kind)
	c.Run = run

	for i, k := range c.Sweep.Models {
		if c.Sweep.Models[i], err = model.ParseKind(string(k)); err != nil {
			return err
		}
	}
	for i, s := range c.Sweep.Strategies {
		if c.Sweep.Strategies[i], err = fl.ParseStrategy(string(s)); err != nil {
			return err
		}
	}
	for i, t := range c.Sweep.Techniques {
		if c.Sweep.Techniques[i], err = fl.ParseTechnique(string(t)); err != nil {
			return err
		}
	}

	return nil
}
