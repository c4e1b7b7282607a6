// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"  ERROR  ", LevelError},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "testsvc",
		Quiet:   true,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Info("index loaded", "chunks", 42)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	name := "testsvc_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "index loaded") {
		t.Errorf("log file missing message, got: %s", content)
	}
	if !strings.Contains(content, `"chunks":42`) {
		t.Errorf("log file missing attribute, got: %s", content)
	}
	if !strings.Contains(content, `"service":"testsvc"`) {
		t.Errorf("log file missing service attribute, got: %s", content)
	}
}

func TestNew_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger, err := New(Config{LogDir: dir, Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected log dir to exist: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("first Close() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestWith_CarriesAttributes(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{LogDir: dir, Service: "attrsvc", Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	child := logger.With("conversation_id", "abc-123")
	child.Info("turn appended")
	logger.Close()

	name := "attrsvc_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "abc-123") {
		t.Errorf("expected derived attribute in output, got: %s", data)
	}
}

func TestDefault_NeverNil(t *testing.T) {
	logger := Default()
	if logger == nil || logger.Slog() == nil {
		t.Fatal("Default() returned unusable logger")
	}
	logger.Debug("filtered by default level")
}

// =============================================================================
// multiHandler Tests
// =============================================================================

type recordingHandler struct {
	enabled bool
	count   int
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return h.enabled }
func (h *recordingHandler) Handle(context.Context, slog.Record) error {
	h.count++
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandler_FanOut(t *testing.T) {
	a := &recordingHandler{enabled: true}
	b := &recordingHandler{enabled: false}
	m := &multiHandler{handlers: []slog.Handler{a, b}}

	logger := slog.New(m)
	logger.Info("hello")

	if a.count != 1 {
		t.Errorf("enabled handler count = %d, want 1", a.count)
	}
	if b.count != 0 {
		t.Errorf("disabled handler count = %d, want 0", b.count)
	}
}

func TestMultiHandler_EnabledAggregates(t *testing.T) {
	m := &multiHandler{handlers: []slog.Handler{
		&recordingHandler{enabled: false},
		&recordingHandler{enabled: true},
	}}
	if !m.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled should be true when any handler accepts")
	}

	none := &multiHandler{handlers: []slog.Handler{
		&recordingHandler{enabled: false},
	}}
	if none.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled should be false when no handler accepts")
	}
}

// =============================================================================
// Path Expansion Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log/sportsee", "/var/log/sportsee"},
		{"relative/logs", "relative/logs"},
	}
	for _, tt := range tests {
		got, err := expandPath(tt.in)
		if err != nil {
			t.Errorf("expandPath(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
