package fl

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

type Phase string

const (
	PhaseFit      Phase = "fit"
	PhaseEvaluate Phase = "evaluate"
)

// Tensor is a dense row-major float array with an explicit shape.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"1,keyasint"`
	Data  []float64 `json:"data"  cbor:"2,keyasint"`
}

func NewTensor(shape []int, data []float64) (Tensor, error) {
	if err := (Tensor{Shape: shape, Data: data}).Validate(); err != nil {
		return Tensor{}, err
	}

	return Tensor{Shape: slices.Clone(shape), Data: slices.Clone(data)}, nil
}

// Validate reports ErrShapeMismatch unless len(Data) equals the product of
// Shape.
func (t Tensor) Validate() error {
	n := 1
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrShapeMismatch, d)
		}
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, t.Shape, n, len(t.Data))
	}

	return nil
}

// Vector builds a one-dimensional tensor.
func Vector(values ...float64) Tensor {
	return Tensor{Shape: []int{len(values)}, Data: slices.Clone(values)}
}

func Zeros(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return Tensor{Shape: slices.Clone(shape), Data: make([]float64, n)}
}

func (t Tensor) Len() int {
	return len(t.Data)
}

func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

func (t Tensor) SameShape(o Tensor) bool {
	return slices.Equal(t.Shape, o.Shape) && len(t.Data) == len(o.Data)
}

// ParameterVector is the ordered list of tensors exchanged between the
// coordinator and participants. Every hand-off is a Clone.
type ParameterVector []Tensor

func (p ParameterVector) Clone() ParameterVector {
	if p == nil {
		return nil
	}
	out := make(ParameterVector, len(p))
	for i, t := range p {
		out[i] = t.Clone()
	}

	return out
}

func (p ParameterVector) Shapes() [][]int {
	shapes := make([][]int, len(p))
	for i, t := range p {
		shapes[i] = slices.Clone(t.Shape)
	}

	return shapes
}

// Compatible reports ErrShapeMismatch unless q has the same number of
// tensors as p and every tensor has the same shape.
func (p ParameterVector) Compatible(q ParameterVector) error {
	if len(p) != len(q) {
		return fmt.Errorf("%w: %d tensors vs %d", ErrShapeMismatch, len(p), len(q))
	}
	for i := range p {
		if !p[i].SameShape(q[i]) {
			return fmt.Errorf("%w: tensor %d has shape %v vs %v", ErrShapeMismatch, i, p[i].Shape, q[i].Shape)
		}
	}

	return nil
}

// Metrics holds per-participant values. Values are usually float64 but a
// participant may report anything, for example an "error" string.
type Metrics map[string]any

func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}

	return maps.Clone(m)
}

const ErrorKey = "error"

// Err returns the recorded error message of a degraded result.
func (m Metrics) Err() (string, bool) {
	v, ok := m[ErrorKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)

	return s, ok
}

type FitResult struct {
	Parameters  ParameterVector `json:"parameters"`
	SampleCount int             `json:"sample_count"`
	Metrics     Metrics         `json:"metrics"`
}

func (r FitResult) Degraded() bool {
	_, ok := r.Metrics.Err()
	return ok
}

type EvaluateResult struct {
	Loss        float64 `json:"loss"`
	SampleCount int     `json:"sample_count"`
	Metrics     Metrics `json:"metrics"`
}

func (r EvaluateResult) Degraded() bool {
	_, ok := r.Metrics.Err()
	return ok
}

// FitReply pairs a fit result with the participant that produced it.
type FitReply struct {
	ParticipantID string
	Result        FitResult
}

type EvaluateReply struct {
	ParticipantID string
	Result        EvaluateResult
}

// RoundConfig is handed by value to every participant of a round.
type RoundConfig struct {
	RoundIndex  int            `json:"round_index"`
	LocalEpochs int            `json:"local_epochs"`
	Options     map[string]any `json:"options,omitempty"`
}

func (c RoundConfig) Clone() RoundConfig {
	c.Options = maps.Clone(c.Options)
	return c
}

// Instruction is what the coordinator sends to one participant for one
// phase of a round.
type Instruction struct {
	ParticipantID string          `json:"participant_id"`
	Config        RoundConfig     `json:"config"`
	Parameters    ParameterVector `json:"parameters"`
}

// RoundMetrics is one immutable entry of the run history.
type RoundMetrics struct {
	RoundIndex       int                `json:"round_index"`
	Phase            Phase              `json:"phase"`
	NumParticipants  int                `json:"num_participants"`
	NumFailures      int                `json:"num_failures"`
	NumDegraded      int                `json:"num_degraded"`
	Values           map[string]float64 `json:"values"`
	AggregationError string             `json:"aggregation_error,omitempty"`
	CompletedAt      time.Time          `json:"completed_at"`
}

func (m RoundMetrics) Clone() RoundMetrics {
	m.Values = maps.Clone(m.Values)
	return m
}

type PrivacyBudget struct {
	TotalEpsilon float64 `json:"total_epsilon"`
	TotalDelta   float64 `json:"total_delta"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the persisted output of one completed run.
type RunRecord struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Status          RunStatus          `json:"status"`
	Error           string             `json:"error,omitempty"`
	Config          RunConfig          `json:"config"`
	History         []RoundMetrics     `json:"history"`
	Budget          PrivacyBudget      `json:"budget"`
	Privacy         map[string]any     `json:"privacy"`
	FinalParameters ParameterVector    `json:"final_parameters,omitempty"`
	Baseline        map[string]float64 `json:"baseline,omitempty"`
	Resources       map[string]float64 `json:"resources,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
}

// RoundsOf returns the history entries recorded for the given phase.
func (r RunRecord) RoundsOf(phase Phase) []RoundMetrics {
	var out []RoundMetrics
	for _, m := range r.History {
		if m.Phase == phase {
			out = append(out, m)
		}
	}

	return out
}
