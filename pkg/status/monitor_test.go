package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/shape"
	"proxyconsole/pkg/upstream"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []any
	statuses []models.ServiceStatus
}

func (r *recordingSink) ApplyServiceStatus(src any) (models.ServiceStatus, error) {
	status, err := shape.DecodeServiceStatus(src)
	if status == nil {
		return models.ServiceStatus{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, src)
	r.statuses = append(r.statuses, *status)
	return *status, err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

type MonitorTestSuite struct {
	suite.Suite
	server *httptest.Server
	auth   string
}

func (s *MonitorTestSuite) SetupTest() {
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
}

func (s *MonitorTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *MonitorTestSuite) checker(apiKey string) *Checker {
	client, err := upstream.NewClient(upstream.Options{Direct: true, Timeout: time.Second})
	s.Require().NoError(err)
	return NewChecker(client, s.server.URL, apiKey)
}

func (s *MonitorTestSuite) TestCheckRunning() {
	status := s.checker("sk-1234567890").Check(context.Background())

	s.True(status.Running())
	s.Equal(MessageRunning, *status.Message)
	s.Equal(s.server.URL, *status.Address)
	s.Equal("sk-12345...", *status.APIKey)
	s.Equal("Bearer sk-1234567890", s.auth)
}

func (s *MonitorTestSuite) TestCheckUnreachable() {
	checker := s.checker("")
	s.server.Close()

	status := checker.Check(context.Background())
	s.False(status.Running())
	s.Contains(*status.Message, "service unreachable")
	s.Nil(status.Address)
	s.Nil(status.APIKey)
}

func (s *MonitorTestSuite) TestCheckNowForwardsToSink() {
	sink := &recordingSink{}
	monitor := NewMonitor(s.checker("k"), sink, time.Hour)

	status := monitor.CheckNow(context.Background())
	s.True(status.Running())
	s.Require().Equal(1, sink.count())
	s.Equal(status, sink.statuses[0])
	s.IsType(json.RawMessage{}, sink.payloads[0])
}

func (s *MonitorTestSuite) TestLoopRunsUntilStopped() {
	sink := &recordingSink{}
	monitor := NewMonitor(s.checker("k"), sink, 10*time.Millisecond)

	monitor.Start()
	s.Eventually(func() bool { return sink.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	monitor.Stop()

	stopped := sink.count()
	time.Sleep(30 * time.Millisecond)
	s.Equal(stopped, sink.count())
}

func (s *MonitorTestSuite) TestStopTwiceAndRestart() {
	sink := &recordingSink{}
	monitor := NewMonitor(s.checker("k"), sink, time.Hour)

	monitor.Start()
	monitor.Stop()
	s.NotPanics(monitor.Stop)

	monitor.Start()
	s.Equal(2, sink.count())
	monitor.Stop()
}

func (s *MonitorTestSuite) TestStopWithoutStart() {
	monitor := NewMonitor(s.checker(""), &recordingSink{}, 0)
	s.Equal(defaultCheckInterval, monitor.interval)
	monitor.Stop()
}

func (s *MonitorTestSuite) TestSetChecker() {
	sink := &recordingSink{}
	monitor := NewMonitor(s.checker(""), sink, time.Hour)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 1
	replacement, err := CheckerFromConfig(cfg)
	s.Require().NoError(err)
	s.Equal("http://127.0.0.1:1", replacement.baseURL)

	monitor.SetChecker(replacement)
	s.False(monitor.CheckNow(context.Background()).Running())
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}
