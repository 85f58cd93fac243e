package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itsjamie/gin-cors"
	"github.com/manatee-project/manatee-jobs/util"
)

const RequestIDHeader = "X-Request-Id"

type RouterOptions struct {
	// Token, when set, must be sent as the Authorization header (raw or as
	// "token <value>") or as the token query parameter.
	Token       string
	EnablePprof bool
}

func NewRouter(s *Server, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.Middleware(cors.Config{
		Origins:         "*",
		Methods:         "GET, PUT, POST, DELETE",
		RequestHeaders:  "Origin, Authorization, Content-Type",
		ExposedHeaders:  RequestIDHeader,
		MaxAge:          50 * time.Second,
		ValidateHeaders: false,
	}))
	if opts.EnablePprof {
		pprof.Register(r)
	}

	manatee := r.Group("/manatee")
	if opts.Token != "" {
		manatee.Use(tokenAuth(opts.Token))
	}
	jobManager(manatee, s)
	return r
}

func jobManager(router *gin.RouterGroup, s *Server) {
	router.POST("/job", s.SubmitJob)
	router.GET("/jobs", s.ListJobs)
	router.GET("/jobs/watch", s.WatchJobs)
	router.POST("/output", s.DownloadOutput)
	router.GET("/attestation", s.GetAttestation)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		s.log.WithField("request_id", requestID).Infof("%s %s %d %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader("Authorization")
		given = strings.TrimPrefix(given, "token ")
		if given == "" {
			given = c.Query("token")
		}
		if given != token {
			c.AbortWithStatusJSON(http.StatusForbidden, util.CreateErrorResponse(http.StatusForbidden, "Forbidden"))
			return
		}
		c.Next()
	}
}
