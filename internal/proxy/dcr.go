package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/manatee-project/manatee-jobs/constants"
)

// UpstreamError is a non-200 answer from the data clean room or from a
// signed URL.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

type dcrOutputResp struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Filename  string `json:"filename"`
	SignedURL string `json:"signed_url"`
}

type dcrAttestationResp struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	SignedURL string `json:"signed_url"`
}

// DCRClient calls the data clean room API on behalf of one creator.
type DCRClient struct {
	serverURL  string
	token      string
	creator    string
	httpClient *http.Client

	// signed URLs may redirect to the storage backend
	signedClient *http.Client
	// workspace uploads outlive the request timeout
	uploadClient *http.Client
}

func NewDCRClient(serverURL, token, creator string) *DCRClient {
	return &DCRClient{
		serverURL: strings.TrimRight(serverURL, "/") + "/",
		token:     token,
		creator:   creator,
		httpClient: &http.Client{
			Timeout: constants.DefaultRequestTimeoutSeconds * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		signedClient: &http.Client{Timeout: 10 * time.Minute},
		uploadClient: &http.Client{
			Timeout: 10 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (d *DCRClient) Creator() string {
	return d.creator
}

// QueryJobs returns the raw job list envelope for one page.
func (d *DCRClient) QueryJobs(ctx context.Context, page, pageSize int) ([]byte, error) {
	return d.post(ctx, constants.DcrJobQuery, map[string]interface{}{
		"page":      page,
		"page_size": pageSize,
		"creator":   d.creator,
	})
}

func (d *DCRClient) requestOutput(ctx context.Context, id int64) (*dcrOutputResp, error) {
	body, err := d.post(ctx, constants.DcrJobOutput, map[string]interface{}{
		"id":      id,
		"creator": d.creator,
		"chunk":   constants.DOWNLOAD_CHUNK_SIZE,
	})
	if err != nil {
		return nil, err
	}
	var resp dcrOutputResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", constants.DcrJobOutput, err)
	}
	return &resp, nil
}

func (d *DCRClient) requestAttestation(ctx context.Context, id int64) (*dcrAttestationResp, error) {
	body, err := d.post(ctx, constants.DcrJobAttestation, map[string]interface{}{
		"id":      id,
		"creator": d.creator,
	})
	if err != nil {
		return nil, err
	}
	var resp dcrAttestationResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", constants.DcrJobAttestation, err)
	}
	return &resp, nil
}

// SubmitJob uploads the packed workspace at archive together with the
// notebook filename and extra envs, and returns the raw answer.
func (d *DCRClient) SubmitJob(ctx context.Context, filename, archive string, envs []EnvVar) ([]byte, error) {
	envsJSON, err := json.Marshal(envs)
	if err != nil {
		return nil, fmt.Errorf("failed convert to json, error: %w", err)
	}
	form := func() (*bytes.Buffer, string, error) {
		return d.submitForm(archive, filename, envsJSON)
	}

	target := d.serverURL + constants.DcrJobSubmit
	resp, err := d.sendForm(ctx, target, form)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTemporaryRedirect {
		resp.Body.Close()
		location, err := resp.Location()
		if err != nil {
			return nil, fmt.Errorf("bad redirect from %s: %w", constants.DcrJobSubmit, err)
		}
		if resp, err = d.sendForm(ctx, location.String(), form); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{URL: target, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// submitForm builds the multipart body of a submission. It is rebuilt for
// every attempt since a form can be read only once.
func (d *DCRClient) submitForm(archive, filename string, envsJSON []byte) (*bytes.Buffer, string, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Disposition", `form-data; name="file"; filename="workspace.tar.gz"`)
	fileHeader.Set("Content-Type", "application/gzip")
	part, err := mw.CreatePart(fileHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	envsHeader := textproto.MIMEHeader{}
	envsHeader.Set("Content-Disposition", `form-data; name="envs"`)
	envsHeader.Set("Content-Type", "application/json")
	if part, err = mw.CreatePart(envsHeader); err != nil {
		return nil, "", err
	}
	if _, err := part.Write(envsJSON); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField("creator", d.creator); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("filename", filename); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func (d *DCRClient) sendForm(ctx context.Context, target string, form func() (*bytes.Buffer, string, error)) (*http.Response, error) {
	body, contentType, err := form()
	if err != nil {
		return nil, fmt.Errorf("failed build submit form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if d.token != "" {
		req.Header.Set("Authorization", d.token)
	}
	return d.uploadClient.Do(req)
}

// fetchSigned opens a signed URL. The caller closes the body.
func (d *DCRClient) fetchSigned(ctx context.Context, signedURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.signedClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &UpstreamError{URL: signedURL, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// post sends a JSON body to the data clean room. A 307 answer is followed by
// posting the same body again to the new location.
func (d *DCRClient) post(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed convert to json, error: %w", err)
	}

	target := d.serverURL + endpoint
	resp, err := d.send(ctx, target, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTemporaryRedirect {
		resp.Body.Close()
		location, err := resp.Location()
		if err != nil {
			return nil, fmt.Errorf("bad redirect from %s: %w", endpoint, err)
		}
		if resp, err = d.send(ctx, location.String(), payload); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{URL: target, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (d *DCRClient) send(ctx context.Context, target string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", d.token)
	}
	return d.httpClient.Do(req)
}
