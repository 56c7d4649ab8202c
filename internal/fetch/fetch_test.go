/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFileFetcherSuccess(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.mp3")
	if err := os.WriteFile(src, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "track.mp3")
	f := NewFileFetcher(srcDir, testLogger())
	if err := f.Fetch(context.Background(), "a.mp3", dest); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != "audio-bytes" {
		t.Errorf("dest content = %q", got)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind after success")
	}
}

func TestFileFetcherMissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "track.mp3")
	f := NewFileFetcher(t.TempDir(), testLogger())

	err := f.Fetch(context.Background(), "missing.mp3", dest)
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if fe.Kind != NotFound {
		t.Errorf("Kind = %s, want %s", fe.Kind, NotFound)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dest exists after failed fetch")
	}
}

func TestHTTPFetcherClassification(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusNotFound, NotFound},
		{http.StatusGone, NotFound},
		{http.StatusForbidden, QuotaOrAuthFailure},
		{http.StatusUnauthorized, QuotaOrAuthFailure},
		{http.StatusTooManyRequests, QuotaOrAuthFailure},
		{http.StatusBadGateway, NetworkFailure},
		{http.StatusInternalServerError, NetworkFailure},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		dest := filepath.Join(t.TempDir(), "track.mp3")
		f := NewHTTPFetcher("", testLogger())
		err := f.Fetch(context.Background(), srv.URL+"/a.mp3", dest)
		srv.Close()

		var fe *Error
		if !errors.As(err, &fe) {
			t.Fatalf("status %d: error type = %T, want *Error", tt.status, err)
		}
		if fe.Kind != tt.want {
			t.Errorf("status %d: Kind = %s, want %s", tt.status, fe.Kind, tt.want)
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Errorf("status %d: dest exists after failed fetch", tt.status)
		}
	}
}

func TestHTTPFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("stream-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "track.mp3")
	f := NewHTTPFetcher("", testLogger())
	if err := f.Fetch(context.Background(), srv.URL+"/a.mp3", dest); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "stream-bytes" {
		t.Errorf("dest content = %q", got)
	}
}

func TestServiceFetchAsyncWait(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewService(NewFileFetcher(srcDir, testLogger()), 10*time.Second, testLogger())
	dest := filepath.Join(t.TempDir(), "track.mp3")

	job := svc.FetchAsync(context.Background(), "a.mp3", dest)
	if err := job.Wait(); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("dest missing after successful async fetch: %v", err)
	}

	// A second Wait on a settled job must return immediately with the same result.
	if err := job.Wait(); err != nil {
		t.Errorf("second Wait returned error: %v", err)
	}
}

func TestServiceFetchAsyncFailure(t *testing.T) {
	svc := NewService(NewFileFetcher(t.TempDir(), testLogger()), 10*time.Second, testLogger())
	dest := filepath.Join(t.TempDir(), "track.mp3")

	job := svc.FetchAsync(context.Background(), "missing.mp3", dest)
	err := job.Wait()

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("Wait error type = %T, want *Error", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dest exists after failed async fetch")
	}
}

func TestServiceFetchAsyncCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	svc := NewService(NewHTTPFetcher("", testLogger()), time.Minute, testLogger())
	dest := filepath.Join(t.TempDir(), "track.mp3")

	job := svc.FetchAsync(context.Background(), srv.URL+"/slow.mp3", dest)
	job.Cancel()

	if err := job.Wait(); err == nil {
		t.Fatal("Wait returned nil after Cancel")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dest exists after cancelled fetch")
	}
}
