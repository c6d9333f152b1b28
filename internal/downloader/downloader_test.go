package downloader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureArchiveSkipsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.tar.gz")
	if err := os.WriteFile(path, []byte("archive"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	// No URL configured: must succeed without touching the network.
	if err := NewDownloader().EnsureArchive(path, ""); err != nil {
		t.Errorf("EnsureArchive() error = %v for existing file", err)
	}
}

func TestEnsureArchiveDownloadsMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake archive bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "data", "tracks.tar.gz")

	if err := NewDownloader().EnsureArchive(path, srv.URL); err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("archive was not written: %v", err)
	}
	if string(data) != "fake archive bytes" {
		t.Errorf("archive content = %q", data)
	}
}

func TestEnsureArchiveMissingWithoutURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.tar.gz")

	if err := NewDownloader().EnsureArchive(path, ""); err == nil {
		t.Error("EnsureArchive() expected error for missing file without URL")
	}
}

func TestEnsureArchiveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "tracks.tar.gz")

	if err := NewDownloader().EnsureArchive(path, srv.URL); err == nil {
		t.Error("EnsureArchive() expected error for non-OK response")
	}

	if _, err := os.Stat(path); err == nil {
		t.Error("partial file left behind after failed download")
	}
}
