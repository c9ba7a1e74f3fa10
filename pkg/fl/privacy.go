package fl

import (
	crand "crypto/rand"
	"math/rand/v2"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

type Technique string

const (
	TechniqueNone            Technique = "none"
	TechniqueClipping        Technique = "clipping"
	TechniqueNoising         Technique = "noising"
	TechniqueClippingNoising Technique = "clipping+noising"
)

var Techniques = []Technique{TechniqueNone, TechniqueClipping, TechniqueNoising, TechniqueClippingNoising}

func ParseTechnique(s string) (Technique, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TechniqueNone):
		return TechniqueNone, nil
	case string(TechniqueClipping):
		return TechniqueClipping, nil
	case string(TechniqueNoising):
		return TechniqueNoising, nil
	case string(TechniqueClippingNoising), "clipping_noising":
		return TechniqueClippingNoising, nil
	default:
		return "", configError("unsupported privacy technique %q", s)
	}
}

func (t Technique) clips() bool {
	return t == TechniqueClipping || t == TechniqueClippingNoising
}

func (t Technique) noises() bool {
	return t == TechniqueNoising || t == TechniqueClippingNoising
}

type PrivacyConfig struct {
	Technique       Technique `json:"technique"        toml:"technique"        yaml:"technique"        env:"TECHNIQUE"        envDefault:"none"`
	ClippingNorm    float64   `json:"clipping_norm"    toml:"clipping_norm"    yaml:"clipping_norm"    env:"CLIPPING_NORM"    envDefault:"1.0"`
	NoiseMultiplier float64   `json:"noise_multiplier" toml:"noise_multiplier" yaml:"noise_multiplier" env:"NOISE_MULTIPLIER" envDefault:"0.1"`
	Epsilon         float64   `json:"epsilon"          toml:"epsilon"          yaml:"epsilon"          env:"EPSILON"          envDefault:"1.0"`
	Delta           float64   `json:"delta"            toml:"delta"            yaml:"delta"            env:"DELTA"            envDefault:"1e-5"`
}

func DefaultPrivacyConfig() PrivacyConfig {
	return PrivacyConfig{
		Technique:       TechniqueNone,
		ClippingNorm:    1.0,
		NoiseMultiplier: 0.1,
		Epsilon:         1.0,
		Delta:           1e-5,
	}
}

func (c PrivacyConfig) Validate() (PrivacyConfig, error) {
	t, err := ParseTechnique(string(c.Technique))
	if err != nil {
		return c, err
	}
	c.Technique = t

	switch {
	case !(c.ClippingNorm > 0):
		return c, configError("clipping_norm must be positive, got %g", c.ClippingNorm)
	case !(c.NoiseMultiplier >= 0):
		return c, configError("noise_multiplier must not be negative, got %g", c.NoiseMultiplier)
	case !(c.Epsilon > 0):
		return c, configError("epsilon must be positive, got %g", c.Epsilon)
	case !(c.Delta > 0 && c.Delta < 1):
		return c, configError("delta must be in (0,1), got %g", c.Delta)
	}

	return c, nil
}

// NoiseScale is the standard deviation of the Gaussian noise added per
// element when the technique noises.
func (c PrivacyConfig) NoiseScale() float64 {
	return c.NoiseMultiplier * c.ClippingNorm / c.Epsilon
}

// Budget composes the per-round guarantee sequentially over rounds. It is
// the loose additive bound, not a moments accountant. Techniques without a
// randomised mechanism report a zero budget.
func (c PrivacyConfig) Budget(rounds int) PrivacyBudget {
	if !c.Technique.noises() || rounds <= 0 {
		return PrivacyBudget{}
	}

	return PrivacyBudget{
		TotalEpsilon: c.Epsilon * float64(rounds),
		TotalDelta:   c.Delta * float64(rounds),
	}
}

func (c PrivacyConfig) Describe() map[string]any {
	return map[string]any{
		"technique":        string(c.Technique),
		"clipping_norm":    c.ClippingNorm,
		"noise_multiplier": c.NoiseMultiplier,
		"epsilon":          c.Epsilon,
		"delta":            c.Delta,
	}
}

// Transform applies a PrivacyConfig to parameter vectors. Each participant
// owns its own Transform so noise draws never share generator state.
type Transform struct {
	cfg PrivacyConfig

	mu  sync.Mutex
	src rand.Source
}

// NewTransform validates cfg. A nil src is replaced by a ChaCha8 generator
// seeded from crypto/rand.
func NewTransform(cfg PrivacyConfig, src rand.Source) (*Transform, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if src == nil {
		src = newEntropySource()
	}

	return &Transform{cfg: cfg, src: src}, nil
}

func (tr *Transform) Config() PrivacyConfig {
	return tr.cfg
}

// Apply never mutates p.
func (tr *Transform) Apply(p ParameterVector) ParameterVector {
	out := p.Clone()
	if tr.cfg.Technique.clips() {
		for i := range out {
			clipInPlace(out[i], tr.cfg.ClippingNorm)
		}
	}
	if tr.cfg.Technique.noises() {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		for i := range out {
			tr.noiseInPlace(out[i])
		}
	}

	return out
}

func (tr *Transform) noiseInPlace(t Tensor) {
	sigma := tr.cfg.NoiseScale()
	if sigma == 0 {
		return
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: tr.src}
	for i := range t.Data {
		t.Data[i] += dist.Rand()
	}
}

// Apply is the stateless form of Transform.Apply, drawing noise from a fresh
// entropy-seeded generator on every call.
func Apply(p ParameterVector, cfg PrivacyConfig) (ParameterVector, error) {
	tr, err := NewTransform(cfg, nil)
	if err != nil {
		return nil, err
	}

	return tr.Apply(p), nil
}

// Clip returns a copy of t rescaled so that its L2 norm does not exceed
// maxNorm.
func Clip(t Tensor, maxNorm float64) Tensor {
	out := t.Clone()
	clipInPlace(out, maxNorm)

	return out
}

func clipInPlace(t Tensor, maxNorm float64) {
	if len(t.Data) == 0 {
		return
	}
	norm := floats.Norm(t.Data, 2)
	if norm > maxNorm {
		floats.Scale(maxNorm/norm, t.Data)
	}
}

func newEntropySource() rand.Source {
	var seed [32]byte
	// crypto/rand.Read does not fail on supported platforms.
	_, _ = crand.Read(seed[:])

	return rand.NewChaCha8(seed)
}
