package api

import (
	"errors"

	"github.com/absmach/fedround/pkg/api"
	"github.com/absmach/fedround/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var errMissingModel = errors.New("missing model")

type startRunReq struct {
	fl.RunConfig `json:",inline"`
}

func (r *startRunReq) validate() error {
	if r.Model == "" {
		return errMissingModel
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}

type roundsReq struct {
	id    string
	phase fl.Phase
}

func (r *roundsReq) validate() error {
	if r.id == "" {
		return apiutil.ErrMissingID
	}
	switch r.phase {
	case "", fl.PhaseFit, fl.PhaseEvaluate:
		return nil
	default:
		return apiutil.ErrValidation
	}
}
