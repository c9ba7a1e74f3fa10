package api

import (
	"context"
	"errors"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/runner"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func startRunEndpoint(svc runner.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(startRunReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		// A run that started and then failed is still reported as created;
		// its status and error fields carry the failure.
		rec, err := svc.StartRun(ctx, req.RunConfig)
		if err != nil && rec.ID == "" {
			return runResponse{}, err
		}

		return runResponse{
			RunRecord: rec,
			created:   true,
		}, nil
	}
}

func getRunEndpoint(svc runner.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		rec, err := svc.GetRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			RunRecord: rec,
		}, nil
	}
}

func listRunsEndpoint(svc runner.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRuns(ctx, req.offset, req.limit)
		if err != nil {
			return listRunsResponse{}, err
		}

		return listRunsResponse{
			RunPage: page,
		}, nil
	}
}

func listRoundsEndpoint(svc runner.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(roundsReq)
		if !ok {
			return roundsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return roundsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		rounds, err := svc.ListRounds(ctx, req.id, req.phase)
		if err != nil {
			return roundsResponse{}, err
		}

		return roundsResponse{
			RunID:  req.id,
			Total:  len(rounds),
			Rounds: rounds,
		}, nil
	}
}
