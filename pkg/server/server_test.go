package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/history"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/router"
	"proxyconsole/pkg/shape"
	"proxyconsole/pkg/state"
	"proxyconsole/pkg/status"
	"proxyconsole/pkg/upstream"
)

const upstreamQuota = `{"code":0,"msg":"","data":{"module_quotas":[
  {"module":"genius_bot","quotas":[{"scene":"plan","current_quota":7}]},
  {"module":"credits","quotas":[{"scene":"plan","current_quota":300}]}
]}}`

type ServerTestSuite struct {
	suite.Suite
	upstream    *httptest.Server
	quotaStatus int
	tempDir     string
	cfg         *config.Config
	state       *state.AppState
	history     *history.Store
	server      *ConsoleServer
}

func (s *ServerTestSuite) SetupTest() {
	s.quotaStatus = http.StatusOK

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/quota", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(s.quotaStatus)
		_, _ = w.Write([]byte(upstreamQuota))
	})
	s.upstream = httptest.NewServer(mux)

	parsed, err := url.Parse(s.upstream.URL)
	s.Require().NoError(err)
	host, portText, err := net.SplitHostPort(parsed.Host)
	s.Require().NoError(err)
	port, err := strconv.Atoi(portText)
	s.Require().NoError(err)

	s.cfg = config.Default()
	s.cfg.Server.Host = host
	s.cfg.Server.Port = port
	s.cfg.Monica.Cookie = "session=abc"
	s.cfg.Monica.QuotaURL = s.upstream.URL + "/quota"
	s.cfg.Security.BearerToken = "sk-test-token"
	s.cfg.HTTPClient.RetryCount = 0

	doc, err := s.cfg.AsMap()
	s.Require().NoError(err)
	s.state = state.New(doc)

	s.tempDir = s.T().TempDir()
	s.history, err = history.NewStore(filepath.Join(s.tempDir, "history.db"))
	s.Require().NoError(err)

	client, err := upstream.NewClient(upstream.Options{Direct: true, Timeout: time.Second})
	s.Require().NoError(err)
	monitor := status.NewMonitor(status.NewChecker(client, s.cfg.BaseURL(), s.cfg.Security.BearerToken), s.state, time.Hour)

	s.server = NewConsoleServer(Options{
		ConfigPath: filepath.Join(s.tempDir, "config.yaml"),
		Config:     s.cfg,
		State:      s.state,
		Monitor:    monitor,
		History:    s.history,
		Version:    "test",
	})
}

func (s *ServerTestSuite) TearDownTest() {
	s.upstream.Close()
	_ = s.history.Close()
}

func (s *ServerTestSuite) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *ServerTestSuite) decode(rec *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (s *ServerTestSuite) errorMessage(rec *httptest.ResponseRecorder) string {
	var body map[string]string
	s.decode(rec, &body)
	return body["error"]
}

func (s *ServerTestSuite) TestRootRedirectsToMain() {
	rec := s.do(http.MethodGet, "/", "")
	s.Equal(http.StatusFound, rec.Code)
	s.Equal("/main", rec.Header().Get("Location"))
}

func (s *ServerTestSuite) TestMainScreen() {
	rec := s.do(http.MethodGet, "/main", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var doc ScreenDocument
	s.decode(rec, &doc)
	s.Equal(router.MainConfig, doc.Route.Screen)
	s.Equal("session=abc", doc.Section["cookie"])
	s.False(doc.State.IsServiceRunning)
	s.Nil(doc.About)
}

func (s *ServerTestSuite) TestScreenPathIsNormalized() {
	rec := s.do(http.MethodGet, "/Server/?tab=1", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var doc ScreenDocument
	s.decode(rec, &doc)
	s.Equal(router.ServerConfig, doc.Route.Screen)
	s.InDelta(float64(s.cfg.Server.Port), doc.Section["port"], 0)
}

func (s *ServerTestSuite) TestUnknownScreen() {
	rec := s.do(http.MethodGet, "/settings", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(s.errorMessage(rec), router.ErrRouteNotFound.Error())
}

func (s *ServerTestSuite) TestCopyrightScreen() {
	rec := s.do(http.MethodGet, "/copyright", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var doc ScreenDocument
	s.decode(rec, &doc)
	s.Equal(router.Copyright, doc.Route.Screen)
	s.Nil(doc.Section)
	s.Require().NotNil(doc.About)
	s.Equal("test", doc.About.Version)
	s.NotEmpty(doc.About.GoVersion)
}

func (s *ServerTestSuite) TestRoutes() {
	rec := s.do(http.MethodGet, "/api/routes", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var routes []router.Route
	s.decode(rec, &routes)
	s.Len(routes, 4)
}

func (s *ServerTestSuite) TestApplyServiceStatus() {
	rec := s.do(http.MethodPut, "/api/state/serviceStatus", `{"isRunning":true,"message":"running"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ShapeResponse
	s.decode(rec, &resp)
	s.Equal("serviceStatus", resp.Shape)
	s.True(resp.Report.OK())
	s.Equal([]string{"address", "apiKey"}, resp.Report.Omitted)

	s.True(s.state.IsServiceRunning())
	s.Nil(s.state.ServiceStatus().Address)
}

func (s *ServerTestSuite) TestApplyMalformedPayloadLeavesState() {
	before := s.state.ServiceStatus()

	rec := s.do(http.MethodPut, "/api/state/serviceStatus", `{bad json`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.errorMessage(rec), "serviceStatus")
	s.Equal(before, s.state.ServiceStatus())
}

func (s *ServerTestSuite) TestApplyQuotaWithSchemaProblems() {
	rec := s.do(http.MethodPut, "/api/state/quotaInfo", `{"error":"HTTP error: 500"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ShapeResponse
	s.decode(rec, &resp)
	s.False(resp.Report.OK())
	s.Equal([]string{"geniusBot", "credits"}, resp.Report.Absent)

	info := s.state.QuotaInfo()
	s.Nil(info.Credits)
	s.Equal("HTTP error: 500", *info.Error)
}

func (s *ServerTestSuite) TestApplyTestResultAppends() {
	payload := `{"endpoint":"/quota","url":"http://x/quota","requestData":"{}","responseData":"{\"credits\":5}","statusCode":200}`

	rec := s.do(http.MethodPost, "/api/state/testResults", payload)
	s.Require().Equal(http.StatusOK, rec.Code)

	results := s.state.TestResults()
	s.Require().Len(results, 1)
	s.Equal(200, *results[0].StatusCode)
	s.Nil(results[0].Error)
}

func (s *ServerTestSuite) TestDecodeShape() {
	rec := s.do(http.MethodPost, "/api/shapes/testResult", `{"endpoint":"/v1/models","statusCode":"200"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ShapeResponse
	s.decode(rec, &resp)
	s.Require().Len(resp.Report.Mismatched, 1)
	s.Equal("statusCode", resp.Report.Mismatched[0].Field)
	s.Contains(resp.Report.Absent, "url")
	s.Empty(s.state.TestResults())
}

func (s *ServerTestSuite) TestDecodeUnknownShape() {
	rec := s.do(http.MethodPost, "/api/shapes/nope", `{}`)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerTestSuite) TestGetConfigWarnings() {
	rec := s.do(http.MethodGet, "/api/config", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ConfigResponse
	s.decode(rec, &resp)
	s.Empty(resp.Warnings)
	s.False(resp.Saved)
}

func (s *ServerTestSuite) TestPutConfig() {
	body := "server:\n  host: 127.0.0.1\n  port: 9999\nmonica:\n  cookie: c\n"

	rec := s.do(http.MethodPut, "/api/config", body)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ConfigResponse
	s.decode(rec, &resp)
	s.True(resp.Saved)
	s.Contains(resp.Warnings, config.ErrMissingBearerToken.Error())

	saved, err := config.Load(filepath.Join(s.tempDir, "config.yaml"))
	s.Require().NoError(err)
	s.Equal(9999, saved.Server.Port)
	s.Equal("c", saved.Monica.Cookie)

	server, _ := s.state.Config()["server"].(map[string]any)
	s.Equal(9999, server["port"])
	s.Equal("127.0.0.1:9999", s.server.config().Address())
}

func (s *ServerTestSuite) TestPutConfigJSON() {
	rec := s.do(http.MethodPut, "/api/config", `{"server":{"port":8181}}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(8181, s.server.config().Server.Port)
}

func (s *ServerTestSuite) TestPutConfigRejected() {
	rec := s.do(http.MethodPut, "/api/config", "server:\n  port: 70000\n")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/config", "server: [")
	s.Equal(http.StatusBadRequest, rec.Code)

	_, err := os.Stat(filepath.Join(s.tempDir, "config.yaml"))
	s.True(os.IsNotExist(err))
	s.Equal(s.cfg.Server.Port, s.server.config().Server.Port)
}

func (s *ServerTestSuite) TestServiceCheck() {
	rec := s.do(http.MethodPost, "/api/service/check", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var serviceStatus models.ServiceStatus
	s.decode(rec, &serviceStatus)
	s.True(serviceStatus.Running())
	s.Equal("sk-test-...", *serviceStatus.APIKey)
	s.True(s.state.IsServiceRunning())
}

// quotaResponse is ShapeResponse with the value decoded as a QuotaInfo.
type quotaResponse struct {
	Shape  string           `json:"shape"`
	Value  models.QuotaInfo `json:"value"`
	Report shape.Report     `json:"report"`
}

func (s *ServerTestSuite) TestQuotaRefresh() {
	rec := s.do(http.MethodPost, "/api/quota/refresh", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp quotaResponse
	s.decode(rec, &resp)
	s.Equal("quotaInfo", resp.Shape)
	s.True(resp.Report.OK())
	s.Equal([]string{"error"}, resp.Report.Omitted)
	s.Equal(7, *resp.Value.GeniusBot)

	info := s.state.QuotaInfo()
	s.Equal(7, *info.GeniusBot)
	s.Equal(300, *info.Credits)
	s.Nil(info.Error)
	s.False(s.state.Loading())
}

func (s *ServerTestSuite) TestQuotaRefreshFailureIsInBand() {
	s.quotaStatus = http.StatusBadGateway

	rec := s.do(http.MethodPost, "/api/quota/refresh", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp quotaResponse
	s.decode(rec, &resp)
	s.Nil(resp.Value.GeniusBot)
	s.Equal("HTTP error: 502", *resp.Value.Error)
	s.False(resp.Report.OK())
	s.Equal([]string{"geniusBot", "credits"}, resp.Report.Absent)

	stored := s.state.QuotaInfo()
	s.Nil(stored.Credits)
	s.Equal("HTTP error: 502", *stored.Error)
}

func (s *ServerTestSuite) TestDiagnosticsLifecycle() {
	rec := s.do(http.MethodPost, "/api/diagnostics", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp DiagnosticsResponse
	s.decode(rec, &resp)
	s.True(resp.Journaled)
	s.Require().Len(resp.Run.Results, 3)
	s.Equal(200, *resp.Run.Results[0].StatusCode)
	s.Equal(500, *resp.Run.Results[2].StatusCode)
	s.Equal("/v1/models: ok (HTTP 200)", resp.Summary[0])
	s.Require().Len(resp.Reports, 3)
	for _, report := range resp.Reports {
		s.Equal("testResult", report.Shape)
		s.True(report.OK(), "%+v", report)
	}
	s.Len(s.state.TestResults(), 3)
	s.False(s.state.Loading())

	rec = s.do(http.MethodGet, "/api/diagnostics/history", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var runs []models.DiagnosticRun
	s.decode(rec, &runs)
	s.Require().Len(runs, 1)
	s.Equal(resp.Run.ID, runs[0].ID)

	rec = s.do(http.MethodGet, "/api/diagnostics/history/"+resp.Run.ID, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/api/diagnostics", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Empty(s.state.TestResults())
}

func (s *ServerTestSuite) TestDiagnosticsRequireCredentials() {
	rec := s.do(http.MethodPut, "/api/config", "monica:\n  cookie: c\n")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/diagnostics", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.errorMessage(rec), config.ErrMissingBearerToken.Error())
	s.Empty(s.state.TestResults())
}

func (s *ServerTestSuite) TestDiagnosticsRequireBotUIDInCustomMode() {
	body := "monica:\n  cookie: c\n  enable_custom_bot_mode: true\nsecurity:\n  bearer_token: sk-test\n"
	rec := s.do(http.MethodPut, "/api/config", body)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/diagnostics", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.errorMessage(rec), config.ErrMissingBotUID.Error())
	s.Empty(s.state.TestResults())
	s.False(s.state.Loading())
}

func (s *ServerTestSuite) TestMaskedLogValues() {
	cfg := config.Default()
	cfg.Logging.MaskSensitive = true
	s.Equal("***", maskIf(cfg, "short"))
	s.Equal("session=...", maskIf(cfg, "session=abcdef"))

	cfg.Logging.MaskSensitive = false
	s.Equal("short", maskIf(cfg, "short"))
}

func (s *ServerTestSuite) TestHistoryErrors() {
	rec := s.do(http.MethodGet, "/api/diagnostics/history?limit=abc", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/diagnostics/history/missing", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
