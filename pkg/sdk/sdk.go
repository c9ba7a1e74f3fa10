// Package sdk is a client for the fedround HTTP run API. The client
// implements runner.Service, so commands can drive a remote server the same
// way they drive the in-process service.
package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
)

const (
	CTJSON        string = "application/json"
	runsEndpoint         = "/runs"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected response code")
	ErrBadRequest       = errors.New("bad request")
)

var _ runner.Service = (*fedSDK)(nil)

type SDK interface {
	runner.Service

	// Health reports whether the server answers its health check.
	//
	// example:
	//  if err := sdk.Health(ctx); err != nil {
	//    fmt.Println("server down:", err)
	//  }
	Health(ctx context.Context) error
}

type Config struct {
	ServerURL       string `env:"URL"              envDefault:""`
	TLSVerification bool   `env:"TLS_VERIFICATION" envDefault:"true"`
}

type fedSDK struct {
	serverURL string
	client    *http.Client
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		serverURL: cfg.ServerURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Error string `json:"error"`
}

type roundsRes struct {
	RunID  string            `json:"run_id"`
	Total  int               `json:"total"`
	Rounds []fl.RoundMetrics `json:"rounds"`
}

// StartRun posts cfg and waits for the run to finish. A run that the server
// accepted but that failed is returned together with its error.
func (sdk *fedSDK) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.RunRecord, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fl.RunRecord{}, err
	}

	body, err := sdk.processRequest(ctx, http.MethodPost, sdk.serverURL+runsEndpoint, data, http.StatusCreated)
	if err != nil {
		return fl.RunRecord{}, err
	}

	var rec fl.RunRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fl.RunRecord{}, err
	}
	if rec.Status == fl.RunFailed {
		return rec, errors.New(rec.Error)
	}

	return rec, nil
}

func (sdk *fedSDK) GetRun(ctx context.Context, id string) (fl.RunRecord, error) {
	if id == "" {
		return fl.RunRecord{}, pkgerrors.ErrEmptyKey
	}

	body, err := sdk.processRequest(ctx, http.MethodGet, sdk.runURL(id), nil, http.StatusOK)
	if err != nil {
		return fl.RunRecord{}, err
	}

	var rec fl.RunRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fl.RunRecord{}, err
	}

	return rec, nil
}

func (sdk *fedSDK) ListRuns(ctx context.Context, offset, limit uint64) (runner.RunPage, error) {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.FormatUint(offset, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	reqURL := sdk.serverURL + runsEndpoint
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	body, err := sdk.processRequest(ctx, http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return runner.RunPage{}, err
	}

	var page runner.RunPage
	if err := json.Unmarshal(body, &page); err != nil {
		return runner.RunPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) ListRounds(ctx context.Context, id string, phase fl.Phase) ([]fl.RoundMetrics, error) {
	if id == "" {
		return nil, pkgerrors.ErrEmptyKey
	}
	reqURL := sdk.runURL(id) + "/rounds"
	if phase != "" {
		reqURL += "?phase=" + url.QueryEscape(string(phase))
	}

	body, err := sdk.processRequest(ctx, http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res roundsRes
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	if res.Rounds == nil {
		return []fl.RoundMetrics{}, nil
	}

	return res.Rounds, nil
}

func (sdk *fedSDK) Health(ctx context.Context) error {
	_, err := sdk.processRequest(ctx, http.MethodGet, sdk.serverURL+"/health", nil, http.StatusOK)

	return err
}

func (sdk *fedSDK) runURL(id string) string {
	return sdk.serverURL + runsEndpoint + "/" + url.PathEscape(id)
}

func (sdk *fedSDK) processRequest(ctx context.Context, method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		return []byte{}, decodeError(resp.StatusCode, body)
	}

	return body, nil
}

func decodeError(code int, body []byte) error {
	var kind error
	switch code {
	case http.StatusNotFound:
		kind = pkgerrors.ErrNotFound
	case http.StatusBadRequest:
		kind = ErrBadRequest
	default:
		kind = fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}

	var res errorRes
	if err := json.Unmarshal(body, &res); err == nil && res.Error != "" {
		return fmt.Errorf("%w: %s", kind, res.Error)
	}

	return kind
}
