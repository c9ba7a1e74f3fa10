package fl

import (
	"strings"
	"time"
)

type Strategy string

const (
	FedAvg Strategy = "fedavg"
	FedMed Strategy = "fedmed"
)

var Strategies = []Strategy{FedAvg, FedMed}

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case FedAvg:
		return FedAvg, nil
	case FedMed:
		return FedMed, nil
	default:
		return "", configError("unsupported aggregation strategy %q", s)
	}
}

const (
	DefRounds      = 10
	DefLocalEpochs = 1
	DefTimeoutS    = 30
	DefModel       = "ridge"
)

// DatasetConfig describes where participants read their local partition.
type DatasetConfig struct {
	Source       string  `json:"source"        toml:"source"        yaml:"source"        env:"SOURCE"        envDefault:"synthetic"`
	Dir          string  `json:"dir"           toml:"dir"           yaml:"dir"           env:"DIR"           envDefault:"./data/processed"`
	Pattern      string  `json:"pattern"       toml:"pattern"       yaml:"pattern"       env:"PATTERN"       envDefault:"banco%d.csv"`
	Target       string  `json:"target"        toml:"target"        yaml:"target"        env:"TARGET"        envDefault:"Score"`
	TestFraction float64 `json:"test_fraction" toml:"test_fraction" yaml:"test_fraction" env:"TEST_FRACTION" envDefault:"0.2"`
	Seed         uint64  `json:"seed"          toml:"seed"          yaml:"seed"          env:"SEED"          envDefault:"42"`
	Samples      []int   `json:"samples"       toml:"samples"       yaml:"samples"       env:"SAMPLES"       envDefault:"100,200,300"`
	Features     int     `json:"features"      toml:"features"      yaml:"features"      env:"FEATURES"      envDefault:"10"`
	Noise        float64 `json:"noise"         toml:"noise"         yaml:"noise"         env:"NOISE"         envDefault:"0.1"`
}

// RunConfig is read once at run start and never mutated afterwards.
type RunConfig struct {
	Participants int           `json:"participants" toml:"participants" yaml:"participants" env:"PARTICIPANTS" envDefault:"3"`
	Rounds       int           `json:"rounds"       toml:"rounds"       yaml:"rounds"       env:"ROUNDS"       envDefault:"10"`
	Aggregation  Strategy      `json:"aggregation"  toml:"aggregation"  yaml:"aggregation"  env:"AGGREGATION"  envDefault:"fedavg"`
	LocalEpochs  int           `json:"local_epochs" toml:"local_epochs" yaml:"local_epochs" env:"LOCAL_EPOCHS" envDefault:"1"`
	Model        string        `json:"model"        toml:"model"        yaml:"model"        env:"MODEL"        envDefault:"ridge"`
	TimeoutS     int           `json:"timeout_s"    toml:"timeout_s"    yaml:"timeout_s"    env:"TIMEOUT_S"    envDefault:"30"`
	Parallelism  int           `json:"parallelism"  toml:"parallelism"  yaml:"parallelism"  env:"PARALLELISM"  envDefault:"0"`
	Baseline     bool          `json:"baseline"     toml:"baseline"     yaml:"baseline"     env:"BASELINE"     envDefault:"true"`
	Privacy      PrivacyConfig `json:"privacy"      toml:"privacy"      yaml:"privacy"      envPrefix:"PRIVACY_"`
	Dataset      DatasetConfig `json:"dataset"      toml:"dataset"      yaml:"dataset"      envPrefix:"DATA_"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Participants: 3,
		Rounds:       DefRounds,
		Aggregation:  FedAvg,
		LocalEpochs:  DefLocalEpochs,
		Model:        DefModel,
		TimeoutS:     DefTimeoutS,
		Baseline:     true,
		Privacy:      DefaultPrivacyConfig(),
		Dataset: DatasetConfig{
			Source:       "synthetic",
			Dir:          "./data/processed",
			Pattern:      "banco%d.csv",
			Target:       "Score",
			TestFraction: 0.2,
			Seed:         42,
			Samples:      []int{100, 200, 300},
			Features:     10,
			Noise:        0.1,
		},
	}
}

func (c RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// Validate normalises enum spellings and rejects out-of-range values. The
// model kind is validated by the model package when participants are built.
func (c RunConfig) Validate() (RunConfig, error) {
	s, err := ParseStrategy(string(c.Aggregation))
	if err != nil {
		return c, err
	}
	c.Aggregation = s

	priv, err := c.Privacy.Validate()
	if err != nil {
		return c, err
	}
	c.Privacy = priv

	switch {
	case c.Participants < 1:
		return c, configError("participants must be at least 1, got %d", c.Participants)
	case c.Rounds < 1:
		return c, configError("rounds must be at least 1, got %d", c.Rounds)
	case c.LocalEpochs < 1:
		return c, configError("local_epochs must be at least 1, got %d", c.LocalEpochs)
	case c.TimeoutS < 0:
		return c, configError("timeout_s must not be negative, got %d", c.TimeoutS)
	case c.Parallelism < 0:
		return c, configError("parallelism must not be negative, got %d", c.Parallelism)
	case c.Model == "":
		return c, configError("model is required")
	}

	switch c.Dataset.Source {
	case "synthetic", "csv":
	default:
		return c, configError("unsupported dataset source %q", c.Dataset.Source)
	}
	if tf := c.Dataset.TestFraction; !(tf > 0 && tf < 1) {
		return c, configError("test_fraction must be in (0,1), got %g", c.Dataset.TestFraction)
	}

	return c, nil
}
