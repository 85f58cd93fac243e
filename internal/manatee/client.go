package manatee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manatee-project/manatee-jobs/constants"
	"github.com/manatee-project/manatee-jobs/internal/models"
)

// Client talks to the manatee endpoints of the notebook server (or the
// proxy started by `manatee-jobs serve`).
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a header to every request, e.g. the notebook server token.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		header:     http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListJobs fetches one page of jobs. A non-zero envelope code is returned as
// *APIError.
func (c *Client) ListJobs(ctx context.Context, page, pageSize int) (*models.ListJobsResp, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	body, err := c.do(ctx, http.MethodGet, constants.EndpointJobs, query, nil)
	if err != nil {
		return nil, err
	}

	var resp models.ListJobsResp
	if err := c.decode(constants.EndpointJobs, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != models.SuccessCode {
		return nil, &APIError{Endpoint: constants.EndpointJobs, Code: resp.Code, Msg: resp.Msg}
	}
	return &resp, nil
}

// SubmitJob submits a notebook of the workspace as a new job.
func (c *Client) SubmitJob(ctx context.Context, filename, path string) (*models.SubmitJobResp, error) {
	payload, err := json.Marshal(models.SubmitJobReq{Filename: filename, Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed convert to json, error: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, constants.EndpointJob, nil, payload)
	if err != nil {
		return nil, err
	}

	var resp models.SubmitJobResp
	if err := c.decode(constants.EndpointJob, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != models.SuccessCode {
		return nil, &APIError{Endpoint: constants.EndpointJob, Code: resp.Code, Msg: resp.Msg}
	}
	return &resp, nil
}

// DownloadOutput asks the server to fetch the output of a finished job into
// the workspace.
func (c *Client) DownloadOutput(ctx context.Context, id int64) (*models.OutputResp, error) {
	payload, err := json.Marshal(models.OutputReq{ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed convert to json, error: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, constants.EndpointOutput, nil, payload)
	if err != nil {
		return nil, err
	}

	var resp models.OutputResp
	if err := c.decode(constants.EndpointOutput, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != models.SuccessCode {
		return nil, &APIError{Endpoint: constants.EndpointOutput, Code: resp.Code, Msg: resp.Msg}
	}
	return &resp, nil
}

// GetAttestation returns the OIDC attestation token of a finished job.
func (c *Client) GetAttestation(ctx context.Context, id int64) (*models.AttestationResp, error) {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(id, 10))

	body, err := c.do(ctx, http.MethodGet, constants.EndpointAttestation, query, nil)
	if err != nil {
		return nil, err
	}

	var resp models.AttestationResp
	if err := c.decode(constants.EndpointAttestation, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != models.SuccessCode {
		return nil, &APIError{Endpoint: constants.EndpointAttestation, Code: resp.Code, Msg: resp.Msg}
	}
	return &resp, nil
}

// do sends the request and buffers the whole body. Non-200 responses are
// returned as *StatusError without reading the body.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload []byte) ([]byte, error) {
	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

func (c *Client) decode(endpoint string, body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}
