package sceneio

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	logMu  sync.RWMutex
	logger = zap.NewNop()
)

// SetLogger installs the zap logger the package emits to. Sessions always
// keep their own accumulated text regardless of the logger.
func SetLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

func log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// sessionLog collects the per-run diagnostics that end up in the result's
// Log field, mirroring each line to the package logger.
type sessionLog struct {
	mu    sync.Mutex
	lines []string
}

func (s *sessionLog) Infof(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	s.append(line)
	log().Info(line)
}

func (s *sessionLog) Warnf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	s.append("warning: " + line)
	log().Warn(line)
}

func (s *sessionLog) Errorf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	s.append("error: " + line)
	log().Error(line)
}

func (s *sessionLog) append(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *sessionLog) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}
