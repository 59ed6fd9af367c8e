package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/censai/pkg/intel"
	"github.com/user/censai/pkg/pipeline"
	"github.com/user/censai/pkg/telemetry"
)

const hostBatch = `{
  "records": [
    {"ip": "1.1.1.1", "location": {"country": "us"}, "services": [
      {"port": 22, "product": "OpenSSH", "version": "8.9", "vulnerabilities": [{"cve_id": "CVE-2024-6387", "cvss_score": 8.1}]},
      {"port": 6379, "product": "Redis"}
    ]},
    {"ip": "2.2.2.2", "port": 80, "product": "nginx", "country": "DE"},
    {"port": 80}
  ],
  "top_k": 5
}`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	sum := pipeline.NewSummarizer(pipeline.Deps{
		KEV:  intel.NewKEVSet("CVE-2024-6387"),
		EPSS: intel.NewEPSSMap(nil),
		Log:  log,
	}, pipeline.Options{DefaultTopK: 50, MaxRecords: 3})
	return NewServer(sum, "test", log)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t).Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"version":"test"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	telemetry.InitMetrics()
	w := do(t, newTestServer(t).Router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRules(t *testing.T) {
	w := do(t, newTestServer(t).Router(), http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rules []struct {
			Name string `json:"name"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Rules)
	assert.Equal(t, "service_exposure", body.Rules[0].Name)
}

func TestSummarize(t *testing.T) {
	w := do(t, newTestServer(t).Handler(), http.MethodPost, "/summarize", hostBatch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Result struct {
			ReportID string `json:"report_id"`
			Overview string `json:"overview"`
			KeyRisks []struct {
				KEV      bool     `json:"kev"`
				Evidence []string `json:"evidence"`
			} `json:"key_risks"`
		} `json:"result"`
		Skipped []struct {
			Index  int    `json:"index"`
			Reason string `json:"reason"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Result.ReportID)
	assert.True(t, strings.HasPrefix(body.Result.Overview, "Analyzed 3 services across 2 countries (2 unique IPs)."), body.Result.Overview)
	require.NotEmpty(t, body.Result.KeyRisks)
	assert.True(t, body.Result.KeyRisks[0].KEV)
	require.Len(t, body.Skipped, 1)
}

func TestRetrieve(t *testing.T) {
	body := `{"records":[{"ip":"1.1.1.1","port":6379,"product":"Redis"},{"ip":"2.2.2.2","port":80,"product":"nginx"}],"query":"redis"}`
	w := do(t, newTestServer(t).Router(), http.MethodPost, "/retrieve", body)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		TopK     int `json:"top_k"`
		Evidence []struct {
			IP string `json:"ip"`
		} `json:"evidence"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.TopK)
	require.Len(t, out.Evidence, 1)
	assert.Equal(t, "1.1.1.1", out.Evidence[0].IP)
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t).Router()

	w := do(t, h, http.MethodPost, "/summarize", `{"query":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/summarize", `{"records": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	many := `{"records":[{"ip":"1.1.1.1","port":1},{"ip":"1.1.1.1","port":2},{"ip":"1.1.1.1","port":3},{"ip":"1.1.1.1","port":4}]}`
	w = do(t, h, http.MethodPost, "/retrieve", many)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
