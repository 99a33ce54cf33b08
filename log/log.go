// Package log is the process logger: a severity-gated API over zerolog.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Severity int32

const (
	DEBUG Severity = iota
	INFO
	WARNING
	ERROR
)

var names = []string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
}

func (s *Severity) Get() interface{} {
	return *s
}

// Set parses a severity name, case-insensitively. Unknown names select INFO.
func (s *Severity) Set(value string) error {
	threshold := INFO
	value = strings.ToUpper(value)
	for i, name := range names {
		if name == value {
			threshold = Severity(i)
		}
	}
	*s = threshold
	return nil
}

func (s *Severity) String() string {
	return names[int(*s)]
}

func (s Severity) level() zerolog.Level {
	switch s {
	case DEBUG:
		return zerolog.DebugLevel
	case WARNING:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

type logger struct {
	sync.RWMutex
	zl       zerolog.Logger
	Severity Severity
}

var log = logger{
	zl:       newLogger(os.Stderr, false, INFO),
	Severity: INFO,
}

func newLogger(w io.Writer, json bool, s Severity) zerolog.Logger {
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.StampMicro}
	}
	return zerolog.New(w).Level(s.level()).With().Timestamp().Logger()
}

// Setup replaces the process logger. A nil writer means stderr; json selects
// line-delimited JSON instead of the console format.
func Setup(severity string, json bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	var s Severity
	_ = s.Set(severity)

	log.Lock()
	defer log.Unlock()
	log.Severity = s
	log.zl = newLogger(w, json, s)
}

// Logger returns the underlying zerolog logger for structured fields.
func Logger() zerolog.Logger {
	log.RLock()
	defer log.RUnlock()
	return log.zl
}

func enabled(s Severity) bool {
	log.RLock()
	defer log.RUnlock()
	return log.Severity <= s
}

func emit(s Severity, msg string) {
	l := Logger()
	switch s {
	case DEBUG:
		l.Debug().Msg(msg)
	case INFO:
		l.Info().Msg(msg)
	case WARNING:
		l.Warn().Msg(msg)
	default:
		l.Error().Msg(msg)
	}
}

func Debug(v ...interface{}) {
	if enabled(DEBUG) {
		emit(DEBUG, fmt.Sprint(v...))
	}
}

func Debugf(format string, v ...interface{}) {
	if enabled(DEBUG) {
		emit(DEBUG, fmt.Sprintf(format, v...))
	}
}

func Info(v ...interface{}) {
	if enabled(INFO) {
		emit(INFO, fmt.Sprint(v...))
	}
}

func Infof(format string, v ...interface{}) {
	if enabled(INFO) {
		emit(INFO, fmt.Sprintf(format, v...))
	}
}

func Warning(v ...interface{}) {
	if enabled(WARNING) {
		emit(WARNING, fmt.Sprint(v...))
	}
}

func Warningf(format string, v ...interface{}) {
	if enabled(WARNING) {
		emit(WARNING, fmt.Sprintf(format, v...))
	}
}

func Error(v ...interface{}) {
	emit(ERROR, fmt.Sprint(v...))
}

func Errorf(format string, v ...interface{}) {
	emit(ERROR, fmt.Sprintf(format, v...))
}

func Fatal(v ...interface{}) {
	l := Logger()
	l.Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...interface{}) {
	l := Logger()
	l.Fatal().Msg(fmt.Sprintf(format, v...))
}
