package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	v1 "github.com/qrandom/qrng/api/v1"
	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/executor"
	"github.com/qrandom/qrng/pkg/requestid"
)

const defaultTimeout = 30 * time.Second

// QPUClient is an HTTP client for a remote QPU service.
// It serves both as the backend registry and as the remote executor.
type QPUClient struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

type Option func(*QPUClient)

func WithInstance(instance string) Option {
	return func(c *QPUClient) {
		c.instance = instance
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *QPUClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *QPUClient) {
		c.httpClient = httpClient
	}
}

func NewQPUClient(baseURL, apiKey string, opts ...Option) *QPUClient {
	c := &QPUClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrUnexpectedStatus is returned for any non 2xx answer of the service.
type ErrUnexpectedStatus struct {
	error
	StatusCode int
}

func newErrUnexpectedStatus(op string, statusCode int, body []byte) *ErrUnexpectedStatus {
	msg := strings.TrimSpace(string(body))
	var apiErr v1.Error
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &ErrUnexpectedStatus{
		error:      fmt.Errorf("%s: qpu service returned status %d: %s", op, statusCode, msg),
		StatusCode: statusCode,
	}
}

func (c *QPUClient) ListBackends(ctx context.Context) ([]backend.Candidate, error) {
	var list v1.BackendList
	if err := c.do(ctx, "list backends", http.MethodGet, v1.BackendsPath, nil, &list, http.StatusOK); err != nil {
		return nil, err
	}

	candidates := make([]backend.Candidate, 0, len(list.Backends))
	for _, b := range list.Backends {
		kind, ok := backend.ParseKind(b.Kind)
		if !ok {
			zap.S().Named("qpu_client").Warnw("skipping backend with unknown kind", "backend", b.Name, "kind", b.Kind)
			continue
		}
		candidates = append(candidates, backend.Candidate{
			Name:        b.Name,
			Kind:        kind,
			Operational: b.Operational,
			QueueDepth:  b.QueueDepth,
		})
	}
	return candidates, nil
}

func (c *QPUClient) Submit(ctx context.Context, spec circuit.CircuitSpec, backendName string) (string, error) {
	req := v1.JobCreate{
		Backend:   backendName,
		Program:   spec.QASM(),
		BitLength: spec.BitLength(),
		Shots:     1,
	}

	var status v1.JobStatus
	if err := c.do(ctx, "submit job", http.MethodPost, v1.JobsPath, &req, &status, http.StatusCreated, http.StatusOK); err != nil {
		return "", err
	}
	if status.ID == "" {
		return "", errors.New("submit job: qpu service returned an empty job id")
	}
	return status.ID, nil
}

func (c *QPUClient) PollStatus(ctx context.Context, jobID string) (executor.Poll, error) {
	var status v1.JobStatus
	if err := c.do(ctx, "poll job", http.MethodGet, jobPath(jobID), nil, &status, http.StatusOK); err != nil {
		return executor.Poll{}, err
	}

	p := executor.Poll{Status: executor.Status(status.Status)}
	switch p.Status {
	case executor.StatusDone:
		p.Bits = status.Bits
	case executor.StatusFailed:
		p.FailureDetail = status.Error
	}
	return p, nil
}

func (c *QPUClient) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, "cancel job", http.MethodDelete, jobPath(jobID), nil, nil, http.StatusAccepted, http.StatusNoContent, http.StatusOK)
}

// Health checks that the service answers.
func (c *QPUClient) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, nil, http.StatusOK)
}

func jobPath(jobID string) string {
	return fmt.Sprintf("%s/%s", v1.JobsPath, url.PathEscape(jobID))
}

func (c *QPUClient) do(ctx context.Context, op, method, path string, in, out any, expected ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: failed to marshal request", op)
		}
		body = bytes.NewBuffer(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to create request", op)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.instance != "" {
		httpReq.Header.Set(v1.InstanceHeader, c.instance)
	}
	reqID := requestid.FromContext(ctx)
	if reqID == "" {
		reqID = requestid.Generate()
	}
	httpReq.Header.Set(requestid.Header, reqID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to call qpu service", op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to read response body", op)
	}

	if !slices.Contains(expected, resp.StatusCode) {
		return newErrUnexpectedStatus(op, resp.StatusCode, bodyBytes)
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return errors.Wrapf(err, "%s: failed to decode response", op)
	}
	return nil
}
