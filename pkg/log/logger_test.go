package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

// LoggerTestSuite tests the log package
type LoggerTestSuite struct {
	suite.Suite
	originalLogger zerolog.Logger
	testOutput     *bytes.Buffer
}

func (s *LoggerTestSuite) SetupTest() {
	s.originalLogger = *Current()
	s.testOutput = &bytes.Buffer{}
	configureMu.Lock()
	setLogger(newLogger(s.testOutput, zerolog.DebugLevel))
	configureMu.Unlock()
}

func (s *LoggerTestSuite) TearDownTest() {
	closeLogFile()
	configureMu.Lock()
	setLogger(s.originalLogger)
	configureMu.Unlock()
}

func (s *LoggerTestSuite) TestGetGoroutineID() {
	goroutineID := getGoroutineIDOptimized()
	s.NotEmpty(goroutineID)
	s.LessOrEqual(len(goroutineID), 20)

	if goroutineID != "unknown" {
		for _, char := range goroutineID {
			s.True(char >= '0' && char <= '9', "Goroutine ID should be numeric or 'unknown'")
		}
	}
	s.Equal(goroutineID, getGoroutineIDOptimized())
}

func (s *LoggerTestSuite) TestLevelsCarryGoroutineID() {
	Debug().Msg("debug test")
	Info().Str("screen", "main").Msg("info test")
	Warn().Msg("warn test")
	Error().Msg("error test")

	output := s.testOutput.String()
	for _, want := range []string{"debug test", "info test", "warn test", "error test", "screen", "goid"} {
		s.Contains(output, want)
	}
}

func (s *LoggerTestSuite) TestConfigureJSONToFile() {
	path := filepath.Join(s.T().TempDir(), "logs", "console.log")

	s.Require().NoError(Configure("warn", FormatJSON, path))

	Info().Msg("filtered out")
	Warn().Str("probe", "/v1/models").Msg("kept")

	data, err := os.ReadFile(path)
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	s.Require().Len(lines, 1)

	var entry map[string]any
	s.Require().NoError(json.Unmarshal([]byte(lines[0]), &entry))
	s.Equal("kept", entry["message"])
	s.Equal("warn", entry["level"])
	s.Equal("/v1/models", entry["probe"])
	s.Contains(entry, "goid")
}

func (s *LoggerTestSuite) TestConfigureRejectsUnknownValues() {
	s.Error(Configure("loud", FormatJSON, OutputStdout))
	s.Error(Configure("info", "xml", OutputStdout))
}

func (s *LoggerTestSuite) TestConfigureDefaults() {
	s.Require().NoError(Configure("", "", ""))
	s.Equal(zerolog.InfoLevel, Current().GetLevel())
}

func (s *LoggerTestSuite) TestSetDebugMode() {
	s.Require().NoError(Configure("error", FormatJSON, OutputStderr))
	SetDebugMode()
	s.Equal(zerolog.DebugLevel, Current().GetLevel())
}

func (s *LoggerTestSuite) TestMaskSecret() {
	s.Equal("sk-12345...", MaskSecret("sk-1234567890abcdef"))
	s.Equal("short", MaskSecret("short"))
	s.Equal("12345678", MaskSecret("12345678"))
	s.Equal("", MaskSecret(""))
}

func (s *LoggerTestSuite) TestRedactSecret() {
	s.Equal("sk-12345...", RedactSecret("sk-1234567890abcdef"))
	s.Equal("***", RedactSecret("short"))
	s.Equal("***", RedactSecret("12345678"))
	s.Equal("", RedactSecret(""))
}

// Run with -race: reconfiguring must not race with logging.
func (s *LoggerTestSuite) TestConfigureWhileLogging() {
	dir := s.T().TempDir()
	const iterations = 200

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := range iterations {
			output := OutputStderr
			if i%2 == 0 {
				output = filepath.Join(dir, "console.log")
			}
			_ = Configure("error", FormatJSON, output)
		}
	}()

	go func() {
		defer wg.Done()
		for range iterations {
			Debug().Msg("filtered")
			Error().Str("screen", "main").Msg("written")
		}
	}()

	wg.Wait()
	s.Equal(zerolog.ErrorLevel, Current().GetLevel())
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
