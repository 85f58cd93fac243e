package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/manatee-project/manatee-jobs/constants"
	"github.com/manatee-project/manatee-jobs/internal/cache"
	"github.com/manatee-project/manatee-jobs/internal/models"
	"github.com/manatee-project/manatee-jobs/util"
	"github.com/sirupsen/logrus"
)

// Server answers the manatee endpoints by calling the data clean room.
type Server struct {
	dcr          *DCRClient
	tokens       cache.TokenCache
	outputDir    string
	workspaceDir string
	pollInterval time.Duration
	log          logrus.FieldLogger
}

type ServerOptions struct {
	// OutputDir receives downloaded job outputs. Default ".".
	OutputDir string
	// WorkspaceDir is packed and uploaded on job submission. Default ".".
	WorkspaceDir string
	// Tokens caches attestation tokens. Nil disables caching.
	Tokens cache.TokenCache
	// PollInterval is the push period of the watch stream. Default 10s.
	PollInterval time.Duration
	Logger       logrus.FieldLogger
}

func NewServer(dcr *DCRClient, opts ServerOptions) *Server {
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = "."
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollIntervalSeconds * time.Second
	}
	var logger logrus.FieldLogger = logs.GetLogger()
	if opts.Logger != nil {
		logger = opts.Logger
	}
	return &Server{
		dcr:          dcr,
		tokens:       opts.Tokens,
		outputDir:    opts.OutputDir,
		workspaceDir: opts.WorkspaceDir,
		pollInterval: opts.PollInterval,
		log:          logger,
	}
}

// SubmitJob packs the workspace and submits it with the notebook to the data
// clean room. The answer is passed through unchanged.
func (s *Server) SubmitJob(c *gin.Context) {
	var req models.SubmitJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.ParamError, "Missing arguments: "+err.Error()))
		return
	}

	archive, err := os.CreateTemp("", "workspace-*.tar.gz")
	if err != nil {
		s.log.Errorf("Failed create workspace archive, error: %v", err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.WorkspaceError))
		return
	}
	defer os.Remove(archive.Name())

	err = packWorkspace(archive, s.workspaceDir, s.dcr.Creator()+"-workspace")
	if closeErr := archive.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.log.Errorf("Failed pack workspace %s, error: %v", s.workspaceDir, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.WorkspaceError))
		return
	}

	body, err := s.dcr.SubmitJob(c.Request.Context(), req.Filename, archive.Name(), extraEnvs(os.Environ()))
	if err != nil {
		s.log.Errorf("Failed submit job, filename: %s, error: %v", req.Filename, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	s.log.Infof("Job submitted, filename: %s, path: %s", req.Filename, req.Path)
	c.Data(http.StatusOK, gin.MIMEJSON, body)
}

// ListJobs passes one page of the creator's jobs through unchanged.
func (s *Server) ListJobs(c *gin.Context) {
	page, pageSize, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.ParamError, err.Error()))
		return
	}

	body, err := s.dcr.QueryJobs(c.Request.Context(), page, pageSize)
	if err != nil {
		s.log.Errorf("Failed query jobs, page: %d, page_size: %d, error: %v", page, pageSize, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	c.Data(http.StatusOK, gin.MIMEJSON, body)
}

// DownloadOutput fetches the output of a job into the output directory.
func (s *Server) DownloadOutput(c *gin.Context) {
	var req models.OutputReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	ctx := c.Request.Context()

	resp, err := s.dcr.requestOutput(ctx, req.ID)
	if err != nil {
		s.log.Errorf("Failed request output of job %d, error: %v", req.ID, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	if resp.Code != models.SuccessCode {
		c.JSON(http.StatusOK, models.OutputResp{Code: resp.Code, Msg: resp.Msg, Filename: resp.Filename})
		return
	}

	filename, err := outputFilename(resp.Filename)
	if err != nil {
		s.log.Errorf("Job %d: %v", req.ID, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.OutputWriteError))
		return
	}

	signed, err := s.dcr.fetchSigned(ctx, resp.SignedURL)
	if err != nil {
		s.log.Errorf("Failed to get download output file through signed url, job: %d, error: %v", req.ID, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	defer signed.Close()

	if err := s.writeOutput(filename, signed); err != nil {
		s.log.Errorf("Failed write output of job %d, error: %v", req.ID, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.OutputWriteError))
		return
	}
	s.log.Infof("Output of job %d saved as %s", req.ID, filename)

	c.JSON(http.StatusOK, models.OutputResp{Code: models.SuccessCode, Msg: "Success", Filename: filename})
}

// GetAttestation returns the attestation token of a job, from the cache when
// one is configured.
func (s *Server) GetAttestation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.ParamError, "invalid job id: "+c.Query("id")))
		return
	}
	ctx := c.Request.Context()
	key := cache.AttestationKey(s.dcr.Creator(), id)

	if s.tokens != nil {
		token, ok, err := s.tokens.Get(key)
		if err != nil {
			s.log.Warnf("Failed read token cache, key: %s, error: %v", key, err)
		} else if ok {
			s.log.Debugf("attestation token of job %d served from cache", id)
			c.JSON(http.StatusOK, models.AttestationResp{Code: models.SuccessCode, Msg: "Success", Token: token})
			return
		}
	}

	resp, err := s.dcr.requestAttestation(ctx, id)
	if err != nil {
		s.log.Errorf("Failed request attestation of job %d, error: %v", id, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	if resp.Code != models.SuccessCode {
		c.JSON(http.StatusOK, models.AttestationResp{Code: resp.Code, Msg: resp.Msg})
		return
	}

	signed, err := s.dcr.fetchSigned(ctx, resp.SignedURL)
	if err != nil {
		s.log.Errorf("Failed to get attestation report through signed url, job: %d, error: %v", id, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	defer signed.Close()

	content, err := io.ReadAll(signed)
	if err != nil {
		s.log.Errorf("Failed read attestation report of job %d, error: %v", id, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.UpstreamError))
		return
	}
	token := string(content)

	if s.tokens != nil {
		if err := s.tokens.Put(key, token); err != nil {
			s.log.Warnf("Failed cache attestation token, key: %s, error: %v", key, err)
		}
	}
	c.JSON(http.StatusOK, models.AttestationResp{Code: models.SuccessCode, Msg: "Success", Token: token})
}

func (s *Server) writeOutput(filename string, src io.Reader) error {
	if err := os.MkdirAll(s.outputDir, os.ModePerm); err != nil {
		return err
	}
	path := filepath.Join(s.outputDir, filename)
	tmp := path + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// outputFilename keeps only the last path element of the name given by the
// data clean room.
func outputFilename(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." {
		return "", fmt.Errorf("invalid output filename: %q", name)
	}
	return base, nil
}

func pageParams(c *gin.Context) (int, int, error) {
	page, err := positiveQuery(c, "page", models.DefaultPage)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := positiveQuery(c, "page_size", models.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func positiveQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, errors.New("invalid " + name + ": " + raw)
	}
	return v, nil
}
