package api

import (
	"net/http"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*runResponse)(nil)
	_ supermq.Response = (*listRunsResponse)(nil)
	_ supermq.Response = (*roundsResponse)(nil)
)

type runResponse struct {
	fl.RunRecord
	created bool
}

func (r runResponse) Code() int {
	if r.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (r runResponse) Headers() map[string]string {
	if r.created {
		return map[string]string{
			"Location": "/runs/" + r.ID,
		}
	}

	return map[string]string{}
}

func (r runResponse) Empty() bool {
	return false
}

type listRunsResponse struct {
	runner.RunPage
}

func (l listRunsResponse) Code() int {
	return http.StatusOK
}

func (l listRunsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRunsResponse) Empty() bool {
	return false
}

type roundsResponse struct {
	RunID  string            `json:"run_id"`
	Total  int               `json:"total"`
	Rounds []fl.RoundMetrics `json:"rounds"`
}

func (r roundsResponse) Code() int {
	return http.StatusOK
}

func (r roundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundsResponse) Empty() bool {
	return false
}
