package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/censai/pkg/pipeline"
	"github.com/user/censai/pkg/record"
	"github.com/user/censai/pkg/retrieval"
)

// Server exposes the summarizer over JSON HTTP.
type Server struct {
	sum     *pipeline.Summarizer
	log     logrus.FieldLogger
	version string
}

func NewServer(sum *pipeline.Summarizer, version string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{sum: sum, log: log, version: version}
}

// batchRequest is the wire shape shared by /summarize and /retrieve.
// Records are raw documents: flat records or host documents with services.
type batchRequest struct {
	Records  json.RawMessage  `json:"records" binding:"required"`
	Query    string           `json:"query"`
	TopK     int              `json:"top_k"`
	Filter   retrieval.Filter `json:"filter"`
	Rewrite  bool             `json:"rewrite_with_ai"`
	Style    string           `json:"style"`
	Language string           `json:"language"`
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/rules", s.handleRules)
	r.POST("/summarize", s.handleSummarize)
	r.POST("/retrieve", s.handleRetrieve)
	return r
}

// Handler wraps the router with OpenTelemetry HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "censai-api")
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		fields := logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		s.log.WithFields(fields).Debug("request served")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": s.version})
}

func (s *Server) handleRules(c *gin.Context) {
	rules := s.sum.Rules()
	list := make([]gin.H, 0, len(rules))
	for _, r := range rules {
		list = append(list, gin.H{
			"name":        r.Name(),
			"description": r.Description(),
			"keys":        r.Keys(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"rules": list})
}

// decode binds the body and normalizes its records.
func (s *Server) decode(c *gin.Context) (pipeline.Request, []record.Skipped, bool) {
	var body batchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Request{}, nil, false
	}
	raws, err := record.Load(bytes.NewReader(body.Records))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Request{}, nil, false
	}
	records, skipped := record.Normalize(raws, s.log)
	return pipeline.Request{
		Records:  records,
		Query:    body.Query,
		TopK:     body.TopK,
		Filter:   body.Filter,
		Rewrite:  body.Rewrite,
		Style:    body.Style,
		Language: body.Language,
	}, skipped, true
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, record.ErrTooManyRecords) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	s.log.WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Server) handleSummarize(c *gin.Context) {
	req, skipped, ok := s.decode(c)
	if !ok {
		return
	}
	resp, err := s.sum.Summarize(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":  resp,
		"skipped": nonNil(skipped),
	})
}

func (s *Server) handleRetrieve(c *gin.Context) {
	req, skipped, ok := s.decode(c)
	if !ok {
		return
	}
	evidence, k, err := s.sum.Retrieve(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"top_k":    k,
		"evidence": evidence,
		"skipped":  nonNil(skipped),
	})
}

func nonNil(s []record.Skipped) []record.Skipped {
	if s == nil {
		return []record.Skipped{}
	}
	return s
}
