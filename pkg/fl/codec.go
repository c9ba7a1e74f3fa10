package fl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}

	return em
}()

// EncodeParameters serialises p with deterministic CBOR.
func EncodeParameters(p ParameterVector) ([]byte, error) {
	data, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	return data, nil
}

// DecodeParameters rejects tensors whose data length disagrees with their
// shape.
func DecodeParameters(data []byte) (ParameterVector, error) {
	var p ParameterVector
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	for i, t := range p {
		if _, err := NewTensor(t.Shape, t.Data); err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
	}

	return p, nil
}

func EncodeRecord(r RunRecord) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run record: %w", err)
	}

	return data, nil
}

func DecodeRecord(data []byte) (RunRecord, error) {
	var r RunRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return RunRecord{}, fmt.Errorf("failed to decode run record: %w", err)
	}

	return r, nil
}
