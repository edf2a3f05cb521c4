// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	rtmp := []string{"rtmp", "rtmps"}
	tests := []struct {
		name    string
		value   string
		schemes []string
		wantErr bool
	}{
		{"rtmp", "rtmp://a.rtmp.youtube.com/live2/", rtmp, false},
		{"rtmps with port", "rtmps://live-api-s.facebook.com:443/rtmp/", rtmp, false},
		{"empty url", "", rtmp, true},
		{"no host", "rtmp://", rtmp, true},
		{"wrong scheme", "http://example.com/live", rtmp, true},
		{"no scheme", "example.com", rtmp, true},
		{"any scheme", "srt://example.com:9000", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("url", tt.value, tt.schemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{":8080", false},
		{"127.0.0.1:9000", false},
		{"[::1]:443", false},
		{"8080", true},
		{":0", true},
		{":http", true},
		{":70000", true},
	}
	for _, tt := range tests {
		v := New()
		v.ListenAddr("listen", tt.addr)
		if tt.wantErr == v.IsValid() {
			t.Errorf("ListenAddr(%q): wantErr=%v, got %v", tt.addr, tt.wantErr, v.Err())
		}
	}
}

func TestValidator_Numbers(t *testing.T) {
	v := New()
	v.Range("in", 5, 1, 10)
	v.Positive("pos", 1)
	v.NonNegative("zero", 0)
	if !v.IsValid() {
		t.Fatalf("unexpected errors: %v", v.Err())
	}

	v.Range("low", 0, 1, 10)
	v.Range("high", 11, 1, 10)
	v.Positive("pos", 0)
	v.NonNegative("neg", -1)
	if got := len(v.Errors()); got != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", got, v.Err())
	}
}

func TestValidator_Duration(t *testing.T) {
	v := New()
	v.Duration("grace", 5*time.Second, time.Second, time.Minute)
	v.Duration("unbounded", time.Hour, time.Second, 0)
	if !v.IsValid() {
		t.Fatalf("unexpected errors: %v", v.Err())
	}

	v.Duration("short", 0, time.Second, time.Minute)
	v.Duration("long", 2*time.Minute, time.Second, time.Minute)
	if got := len(v.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d", got)
	}
}

func TestValidator_StringsAndLogLevel(t *testing.T) {
	v := New()
	v.NotEmpty("name", "restream")
	v.OneOf("exporter", "grpc", []string{"grpc", "http"})
	v.LogLevel("level", "debug")
	if !v.IsValid() {
		t.Fatalf("unexpected errors: %v", v.Err())
	}

	v.NotEmpty("name", "   ")
	v.OneOf("exporter", "zipkin", []string{"grpc", "http"})
	v.LogLevel("level", "verbose")
	if got := len(v.Errors()); got != 3 {
		t.Fatalf("expected 3 errors, got %d", got)
	}
}

func TestValidator_Directory(t *testing.T) {
	tmp := t.TempDir()

	v := New()
	v.Directory("existing", tmp, true)
	if !v.IsValid() {
		t.Fatalf("existing dir rejected: %v", v.Err())
	}

	created := filepath.Join(tmp, "crashes")
	v.Directory("created", created, false)
	if !v.IsValid() {
		t.Fatalf("creatable dir rejected: %v", v.Err())
	}
	if info, err := os.Stat(created); err != nil || !info.IsDir() {
		t.Fatalf("directory was not created: %v", err)
	}

	file := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	v = New()
	v.Directory("file", file, true)
	v.Directory("missing", filepath.Join(tmp, "nope"), true)
	v.Directory("traversal", "../etc", false)
	v.Directory("empty", "", false)
	if got := len(v.Errors()); got != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", got, v.Err())
	}
}

func TestValidationError(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatal("expected nil error for valid validator")
	}

	v.AddError("a", "first", 1)
	v.AddError("b", "second", 2)
	err := v.Err()

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(ve.Errors()))
	}
	if !strings.Contains(err.Error(), "a: first; validation failed for b: second") {
		t.Errorf("unexpected message %q", err.Error())
	}

	// Err returns a copy.
	v.AddError("c", "third", 3)
	if len(ve.Errors()) != 2 {
		t.Error("ValidationError must not alias the validator")
	}
}
