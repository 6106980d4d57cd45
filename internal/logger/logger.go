// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides a leveled, structured logger for the chunk
// client engine. It wraps log/slog with a severity scale that matches
// cfg.LogSeverity (TRACE, DEBUG, INFO, WARNING, ERROR, OFF) and two on-disk
// renderings, text and JSON, selected by cfg.LoggingConfig.Format.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lizardfs-go/chunkclient/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom levels extending the slog scale. slog's built-ins occupy
// Debug=-4, Info=0, Warn=4, Error=8; Trace sits below Debug and Off sits
// above Error so that it suppresses everything once configured.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

var severityToLevel = map[cfg.LogSeverity]slog.Level{
	cfg.TraceLogSeverity:   LevelTrace,
	cfg.DebugLogSeverity:   LevelDebug,
	cfg.InfoLogSeverity:    LevelInfo,
	cfg.WarningLogSeverity: LevelWarn,
	cfg.ErrorLogSeverity:   LevelError,
	cfg.OffLogSeverity:     LevelOff,
}

// loggerFactory owns the sink (stderr or a rotated file) and the format the
// process-wide logger was built with, so InitLogFile/SetLogFormat can tear
// down and rebuild defaultLogger without callers having to pass a handle
// around.
type loggerFactory struct {
	mu sync.Mutex

	file      *lumberjack.Logger
	sysWriter io.Writer // non-nil only when writing to stderr

	level  cfg.LogSeverity
	format string
	prefix string
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		level:     cfg.InfoLogSeverity,
		format:    "text",
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevelFor(cfg.InfoLogSeverity), ""))
)

func programLevelFor(sev cfg.LogSeverity) *slog.LevelVar {
	v := new(slog.LevelVar)
	setLoggingLevel(sev, v)
	return v
}

func setLoggingLevel(sev cfg.LogSeverity, programLevel *slog.LevelVar) {
	level, ok := severityToLevel[sev]
	if !ok {
		level = LevelInfo
	}
	programLevel.Set(level)
}

// severityHandler implements slog.Handler directly rather than wrapping
// slog.TextHandler/JSONHandler: the on-wire shape (quoted "time=" text line,
// nested {"seconds","nanos"} JSON timestamp) doesn't match either built-in
// encoder's output.
type severityHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  *slog.LevelVar
	format string
	prefix string
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	sev, ok := levelNames[r.Level]
	if !ok {
		sev = r.Level.String()
	}
	msg := h.prefix + r.Message

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.format == "json" {
		_, err := fmt.Fprintf(h.w, "{\"timestamp\":{\"seconds\":%d,\"nanos\":%d},\"severity\":%q,\"message\":%q}\n",
			r.Time.Unix(), r.Time.Nanosecond(), sev, msg)
		return err
	}
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n", r.Time.Format(time.RFC3339Nano), sev, msg)
	return err
}

func (h *severityHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(string) slog.Handler      { return h }

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return &severityHandler{w: w, mu: &sync.Mutex{}, level: level, format: f.format, prefix: prefix}
}

// SetLogFormat changes the rendering (text or json, defaulting to json for
// any other value) used by the process-wide logger, without touching the
// sink it writes to.
func SetLogFormat(format string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	if format != "text" {
		format = "json"
	}
	defaultLoggerFactory.format = format

	var w io.Writer = defaultLoggerFactory.sysWriter
	if defaultLoggerFactory.file != nil {
		w = defaultLoggerFactory.file
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevelFor(defaultLoggerFactory.level), ""))
}

// InitLogFile redirects the process-wide logger to a rotated file governed
// by cfg.LoggingConfig. An empty FilePath leaves the logger on stderr.
func InitLogFile(lc cfg.LoggingConfig) error {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	defaultLoggerFactory.level = lc.Severity
	defaultLoggerFactory.format = lc.Format

	var w io.Writer
	if lc.FilePath == "" {
		defaultLoggerFactory.file = nil
		defaultLoggerFactory.sysWriter = os.Stderr
		w = os.Stderr
	} else {
		lj := &lumberjack.Logger{
			Filename:   lc.FilePath,
			MaxSize:    lc.MaxFileSizeMB,
			MaxBackups: lc.BackupFileCount,
			Compress:   lc.Compress,
		}
		defaultLoggerFactory.file = lj
		defaultLoggerFactory.sysWriter = nil
		w = lj
	}

	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevelFor(lc.Severity), ""))
	return nil
}

func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}

// Fatalf logs at ERROR severity and terminates the process. Reserved for
// startup failures the engine cannot recover from (bad config, unreachable
// master on first connect).
func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
