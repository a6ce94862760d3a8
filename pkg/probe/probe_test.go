package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/upstream"
)

type ProbeTestSuite struct {
	suite.Suite
	server *httptest.Server
	mu     sync.Mutex
	seen   []string
	auth   []string
	bodies map[string]string
}

func (s *ProbeTestSuite) SetupTest() {
	s.seen = nil
	s.auth = nil
	s.bodies = map[string]string{}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.seen = append(s.seen, r.Method+" "+r.URL.Path)
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		s.bodies[r.URL.Path] = string(body)
		s.mu.Unlock()

		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
		case "/v1/chat/completions":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
		default:
			_, _ = w.Write([]byte(strings.Repeat("x", 1500)))
		}
	}))
}

func (s *ProbeTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ProbeTestSuite) runner() *Runner {
	client, err := upstream.NewClient(upstream.Options{Direct: true, Timeout: 2 * time.Second})
	s.Require().NoError(err)
	return NewRunner(client, s.server.URL+"/", "sk-test", "session=abc", nil)
}

func (s *ProbeTestSuite) TestRunRecordsEveryProbeInOrder() {
	run := s.runner().Run(context.Background())

	_, err := uuid.Parse(run.ID)
	s.NoError(err)
	s.Equal(s.server.URL, run.BaseURL)
	s.False(run.FinishedAt.Before(run.StartedAt))

	s.Require().Len(run.Results, 3)
	s.Equal([]string{
		"GET /v1/models",
		"POST /v1/chat/completions",
		"POST /v1/images/generations",
	}, s.seen)
	for _, auth := range s.auth {
		s.Equal("Bearer sk-test", auth)
	}

	models0 := run.Results[0]
	s.Equal("/v1/models", *models0.Endpoint)
	s.Equal(s.server.URL+"/v1/models", *models0.URL)
	s.Equal("", *models0.RequestData)
	s.Equal(200, *models0.StatusCode)
	s.Nil(models0.Error)

	chat := run.Results[1]
	s.Equal(401, *chat.StatusCode)
	s.Equal(chatRequest, *chat.RequestData)
	s.Equal(chatRequest, s.bodies["/v1/chat/completions"])
	s.True(chat.Failed())

	image := run.Results[2]
	s.Len(*image.ResponseData, maxResponseData+len(truncatedSuffix))
	s.True(strings.HasSuffix(*image.ResponseData, truncatedSuffix))

	s.Equal(2, run.Passed())
}

func (s *ProbeTestSuite) TestTransportFailureIsRecorded() {
	r := s.runner()
	s.server.Close()

	run := r.Run(context.Background())
	s.Require().Len(run.Results, 3)
	for _, result := range run.Results {
		s.Require().NotNil(result.Error)
		s.Equal(0, *result.StatusCode)
		s.Equal("", *result.ResponseData)
	}
	s.Equal(0, run.Passed())
}

func (s *ProbeTestSuite) TestDescribe() {
	s.Equal("ok (HTTP 200)", Describe(models.TestResult{StatusCode: models.Int(200)}))
	s.Equal("invalid API key (HTTP 401)", Describe(models.TestResult{StatusCode: models.Int(401)}))
	s.Equal("access denied (HTTP 403)", Describe(models.TestResult{StatusCode: models.Int(403)}))
	s.Equal("error (HTTP 502)", Describe(models.TestResult{StatusCode: models.Int(502)}))
	s.Equal("failed: refused", Describe(models.TestResult{Error: models.String("refused")}))
	s.Equal("no status", Describe(models.TestResult{}))
}

func (s *ProbeTestSuite) TestFromConfigUsesLocalhostForWildcardHost() {
	cfg := config.Default()
	cfg.Server.Port = 9191
	cfg.Security.BearerToken = "sk"

	r, err := FromConfig(cfg)
	s.Require().NoError(err)
	s.Equal("http://localhost:9191", r.baseURL)
	s.Equal("Bearer sk", r.headers["Authorization"])
	s.NotContains(r.headers, "Cookie")
}

func TestProbeSuite(t *testing.T) {
	suite.Run(t, new(ProbeTestSuite))
}
