package fl

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput         = errors.New("no parameter vectors provided for aggregation")
	ErrShapeMismatch      = errors.New("parameter vector shape mismatch")
	ErrInvalidWeights     = errors.New("invalid aggregation weights")
	ErrOverflow           = errors.New("sample count overflow during aggregation")
	ErrParticipantFailure = errors.New("participant failure")
	ErrConfiguration      = errors.New("invalid configuration")
)

// ParticipantFailure records a fit or evaluate call that did not produce a
// usable result, either because the participant timed out or because the
// call itself could not be delivered.
type ParticipantFailure struct {
	ParticipantID string
	Phase         Phase
	Round         int
	Err           error
}

func (f *ParticipantFailure) Error() string {
	return fmt.Sprintf("participant %s %s round %d: %v", f.ParticipantID, f.Phase, f.Round, f.Err)
}

func (f *ParticipantFailure) Unwrap() []error {
	return []error{ErrParticipantFailure, f.Err}
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
