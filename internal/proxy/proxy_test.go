package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/manatee-project/manatee-jobs/internal/cache"
	"github.com/manatee-project/manatee-jobs/internal/manatee"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsBody = `{"code":0,"msg":"","jobs":[{"id":7,"jupyter_file_name":"analysis.ipynb","job_status":5,"created_at":"2024-03-01T10:00:00Z","updated_at":"2024-03-01T10:05:00Z"}],"total":1}`

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeDCR records the JSON bodies posted to each data clean room path.
type fakeDCR struct {
	*httptest.Server
	mux *http.ServeMux

	mu     sync.Mutex
	bodies map[string][]map[string]interface{}
	auth   []string
}

func newFakeDCR(t *testing.T) *fakeDCR {
	f := &fakeDCR{mux: http.NewServeMux(), bodies: map[string][]map[string]interface{}{}}
	f.Server = httptest.NewServer(f.mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeDCR) handle(path string, h func(w http.ResponseWriter, body map[string]interface{})) {
	f.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.mu.Lock()
		f.bodies[path] = append(f.bodies[path], body)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		h(w, body)
	})
}

func (f *fakeDCR) calls(path string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.bodies[path]...)
}

type testEnv struct {
	dcr    *fakeDCR
	server *Server
	router *gin.Engine
	outDir string
	hook   *test.Hook
}

func newTestEnv(t *testing.T, tokens cache.TokenCache, routerOpts RouterOptions) *testEnv {
	dcr := newFakeDCR(t)
	logger, hook := test.NewNullLogger()
	outDir := t.TempDir()

	s := NewServer(NewDCRClient(dcr.URL, "dcr-token", "alice"), ServerOptions{
		OutputDir:    outDir,
		Tokens:       tokens,
		PollInterval: 50 * time.Millisecond,
		Logger:       logger,
	})
	return &testEnv{dcr: dcr, server: s, router: NewRouter(s, routerOpts), outDir: outDir, hook: hook}
}

func (e *testEnv) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestListJobsPassthrough(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, jobsBody)
	})

	w := env.do(http.MethodGet, "/manatee/jobs?page=2&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, jobsBody, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	calls := env.dcr.calls("/v1/job/query")
	require.Len(t, calls, 1)
	assert.EqualValues(t, 2, calls[0]["page"])
	assert.EqualValues(t, 5, calls[0]["page_size"])
	assert.Equal(t, "alice", calls[0]["creator"])
	assert.Equal(t, []string{"dcr-token"}, env.dcr.auth)
}

func TestListJobsDefaults(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, jobsBody)
	})

	w := env.do(http.MethodGet, "/manatee/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	calls := env.dcr.calls("/v1/job/query")
	require.Len(t, calls, 1)
	assert.EqualValues(t, 1, calls[0]["page"])
	assert.EqualValues(t, 10, calls[0]["page_size"])
}

func TestListJobsInvalidParams(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	for _, q := range []string{"page=abc", "page=0", "page_size=-1"} {
		w := env.do(http.MethodGet, "/manatee/jobs?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	assert.Empty(t, env.dcr.calls("/v1/job/query"))
}

func TestListJobsUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		w.WriteHeader(http.StatusBadGateway)
	})

	w := env.do(http.MethodGet, "/manatee/jobs", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, env.hook.AllEntries())
}

func TestPostFollowsTemporaryRedirect(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		w.Header().Set("Location", "/v2/job/query")
		w.WriteHeader(http.StatusTemporaryRedirect)
	})
	env.dcr.handle("/v2/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, jobsBody)
	})

	w := env.do(http.MethodGet, "/manatee/jobs?page=3", nil)
	require.Equal(t, http.StatusOK, w.Code)

	calls := env.dcr.calls("/v2/job/query")
	require.Len(t, calls, 1)
	assert.EqualValues(t, 3, calls[0]["page"])
	assert.Equal(t, "alice", calls[0]["creator"])
}

func TestDownloadOutput(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/signed/output", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, "a,b\n1,2\n")
	})
	env.dcr.handle("/v1/job/output/download", func(w http.ResponseWriter, _ map[string]interface{}) {
		fmt.Fprintf(w, `{"code":0,"msg":"","filename":"../../out-7.csv","signed_url":"%s/signed/output"}`, env.dcr.URL)
	})

	w := env.do(http.MethodPost, "/manatee/output", strings.NewReader(`{"id":7}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"msg":"Success","filename":"out-7.csv"}`, w.Body.String())

	content, err := os.ReadFile(filepath.Join(env.outDir, "out-7.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content))

	calls := env.dcr.calls("/v1/job/output/download")
	require.Len(t, calls, 1)
	assert.EqualValues(t, 7, calls[0]["id"])
	assert.EqualValues(t, 3*1024*1024, calls[0]["chunk"])
}

func TestDownloadOutputCodePassthrough(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/output/download", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, `{"code":1,"msg":"job not found"}`)
	})

	w := env.do(http.MethodPost, "/manatee/output", strings.NewReader(`{"id":8}`))
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMap(t, w)
	assert.EqualValues(t, 1, m["code"])
	assert.Equal(t, "job not found", m["msg"])
}

func TestDownloadOutputFailures(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/signed/missing", func(w http.ResponseWriter, _ map[string]interface{}) {
		w.WriteHeader(http.StatusNotFound)
	})
	env.dcr.handle("/v1/job/output/download", func(w http.ResponseWriter, _ map[string]interface{}) {
		fmt.Fprintf(w, `{"code":0,"filename":"out.csv","signed_url":"%s/signed/missing"}`, env.dcr.URL)
	})

	w := env.do(http.MethodPost, "/manatee/output", strings.NewReader(`{"id":7}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, err := os.Stat(filepath.Join(env.outDir, "out.csv"))
	assert.True(t, os.IsNotExist(err))

	w = env.do(http.MethodPost, "/manatee/output", strings.NewReader(`{"id":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutputFilename(t *testing.T) {
	for in, want := range map[string]string{
		"out.csv":          "out.csv",
		"dir/out.csv":      "out.csv",
		"../../etc/passwd": "passwd",
	} {
		got, err := outputFilename(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "/", "..", "."} {
		_, err := outputFilename(in)
		assert.Error(t, err, in)
	}
}

func TestGetAttestationCached(t *testing.T) {
	tokens, err := cache.OpenDiskCache(filepath.Join(t.TempDir(), "tokens"), time.Hour)
	require.NoError(t, err)
	defer tokens.Close()

	env := newTestEnv(t, tokens, RouterOptions{})
	env.dcr.handle("/signed/token", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, "eyJhbGciOiJSUzI1NiJ9.payload.sig")
	})
	env.dcr.handle("/v1/job/attestation/", func(w http.ResponseWriter, _ map[string]interface{}) {
		fmt.Fprintf(w, `{"code":0,"msg":"","signed_url":"%s/signed/token"}`, env.dcr.URL)
	})

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodGet, "/manatee/attestation?id=7", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"code":0,"msg":"Success","token":"eyJhbGciOiJSUzI1NiJ9.payload.sig"}`, w.Body.String())
	}

	calls := env.dcr.calls("/v1/job/attestation/")
	require.Len(t, calls, 1)
	assert.EqualValues(t, 7, calls[0]["id"])
	assert.Equal(t, "alice", calls[0]["creator"])

	token, ok, err := tokens.Get(cache.AttestationKey("alice", 7))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "eyJhbGciOiJSUzI1NiJ9.payload.sig", token)
}

func TestGetAttestationFailures(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/attestation/", func(w http.ResponseWriter, body map[string]interface{}) {
		if body["id"] == float64(9) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"code":2,"msg":"attestation not ready"}`)
	})

	w := env.do(http.MethodGet, "/manatee/attestation?id=8", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":2,"msg":"attestation not ready"}`, w.Body.String())

	w = env.do(http.MethodGet, "/manatee/attestation?id=9", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = env.do(http.MethodGet, "/manatee/attestation", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenAuth(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{Token: "nb-token"})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, jobsBody)
	})

	w := env.do(http.MethodGet, "/manatee/jobs", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/manatee/jobs", nil)
	req.Header.Set("Authorization", "token nb-token")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/manatee/jobs?token=nb-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWatchJobs(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, jobsBody)
	})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/manatee/jobs/watch?page=1&page_size=10"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, msgType)
		assert.JSONEq(t, jobsBody, string(data))
	}
	assert.GreaterOrEqual(t, len(env.dcr.calls("/v1/job/query")), 2)
}

func TestClientAgainstProxy(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.dcr.handle("/v1/job/query", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, jobsBody)
	})
	env.dcr.handle("/signed/token", func(w http.ResponseWriter, _ map[string]interface{}) {
		io.WriteString(w, "tok")
	})
	env.dcr.handle("/v1/job/attestation/", func(w http.ResponseWriter, _ map[string]interface{}) {
		fmt.Fprintf(w, `{"code":0,"signed_url":"%s/signed/token"}`, env.dcr.URL)
	})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	client := manatee.NewClient(srv.URL)
	ctx := context.Background()

	resp, err := client.ListJobs(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, int64(7), resp.Jobs[0].ID)
	assert.True(t, resp.Jobs[0].IsFinished())

	att, err := client.GetAttestation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "tok", att.Token)
}

type submission struct {
	path     string
	auth     string
	creator  string
	filename string
	envs     []EnvVar
	upload   string
	entries  map[string]string
}

// handleSubmit records the multipart forms posted to path.
func (f *fakeDCR) handleSubmit(t *testing.T, path string, got chan<- submission, h func(w http.ResponseWriter)) {
	f.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		sub := submission{path: path, auth: r.Header.Get("Authorization")}
		if assert.NoError(t, r.ParseMultipartForm(32<<20)) {
			sub.creator = r.FormValue("creator")
			sub.filename = r.FormValue("filename")
			assert.NoError(t, json.Unmarshal([]byte(r.FormValue("envs")), &sub.envs))

			file, header, err := r.FormFile("file")
			if assert.NoError(t, err) {
				sub.upload = header.Filename
				assert.Equal(t, "application/gzip", header.Header.Get("Content-Type"))
				sub.entries = tarEntries(t, file)
				file.Close()
			}
		}
		got <- sub
		h(w)
	})
}

func TestSubmitJob(t *testing.T) {
	t.Setenv("MANATEE_EXTRA_ENV_SEED", "42")
	env := newTestEnv(t, nil, RouterOptions{})
	env.server.workspaceDir = newWorkspace(t)

	got := make(chan submission, 1)
	env.dcr.handleSubmit(t, "/v1/job/submit", got, func(w http.ResponseWriter) {
		io.WriteString(w, `{"code":0,"msg":"Success"}`)
	})

	w := env.do(http.MethodPost, "/manatee/job", strings.NewReader(`{"filename":"analysis.ipynb","path":"analysis.ipynb"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"msg":"Success"}`, w.Body.String())

	sub := <-got
	assert.Equal(t, "dcr-token", sub.auth)
	assert.Equal(t, "alice", sub.creator)
	assert.Equal(t, "analysis.ipynb", sub.filename)
	assert.Equal(t, "workspace.tar.gz", sub.upload)
	assert.Contains(t, sub.envs, EnvVar{Key: "SEED", Value: "42"})
	assert.Equal(t, `{"cells":[]}`, sub.entries["alice-workspace/analysis.ipynb"])
	assert.Equal(t, "a,b\n", sub.entries["alice-workspace/data/in.csv"])
	for name := range sub.entries {
		assert.NotContains(t, name, "/.", name)
		assert.NotContains(t, name, "lost+found", name)
	}
}

func TestSubmitJobFollowsTemporaryRedirect(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.server.workspaceDir = newWorkspace(t)

	got := make(chan submission, 2)
	env.dcr.handleSubmit(t, "/v1/job/submit", got, func(w http.ResponseWriter) {
		w.Header().Set("Location", "/v1/job/submit/")
		w.WriteHeader(http.StatusTemporaryRedirect)
	})
	env.dcr.handleSubmit(t, "/v1/job/submit/", got, func(w http.ResponseWriter) {
		io.WriteString(w, `{"code":0,"msg":"Success"}`)
	})

	w := env.do(http.MethodPost, "/manatee/job", strings.NewReader(`{"filename":"analysis.ipynb","path":"analysis.ipynb"}`))
	require.Equal(t, http.StatusOK, w.Code)

	first, second := <-got, <-got
	assert.Equal(t, "/v1/job/submit", first.path)
	assert.Equal(t, "/v1/job/submit/", second.path)
	assert.Equal(t, "alice", second.creator)
	assert.Equal(t, first.entries, second.entries)
	assert.NotEmpty(t, second.entries["alice-workspace/analysis.ipynb"])
}

func TestSubmitJobFailures(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})
	env.server.workspaceDir = newWorkspace(t)

	got := make(chan submission, 1)
	env.dcr.handleSubmit(t, "/v1/job/submit", got, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for _, body := range []string{`{"filename":"analysis.ipynb"}`, `{"path":"analysis.ipynb"}`, `{`} {
		w := env.do(http.MethodPost, "/manatee/job", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, got)

	w := env.do(http.MethodPost, "/manatee/job", strings.NewReader(`{"filename":"analysis.ipynb","path":"analysis.ipynb"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	<-got

	env.server.workspaceDir = filepath.Join(t.TempDir(), "gone")
	w = env.do(http.MethodPost, "/manatee/job", strings.NewReader(`{"filename":"analysis.ipynb","path":"analysis.ipynb"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.EqualValues(t, 5003, decodeMap(t, w)["code"])
}
