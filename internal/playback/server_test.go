package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestServeFile_Full(t *testing.T) {
	path := writeFile(t, "out.mp4", "0123456789")
	s := NewServer(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := s.ServeFile(rr, req, path, Options{DownloadName: "Demo Reel.mp4"}); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}

	if rr.Code != http.StatusOK || rr.Body.String() != "0123456789" {
		t.Fatalf("response = %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="Demo Reel.mp4"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestServeFile_Range(t *testing.T) {
	path := writeFile(t, "out.mp4", "0123456789")
	s := NewServer(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Range", "bytes=2-5")
	s.ServeFile(rr, req, path, Options{})

	if rr.Code != http.StatusPartialContent || rr.Body.String() != "2345" {
		t.Fatalf("response = %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	path := writeFile(t, "out.mp4", "0123456789")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Range", "bytes=50-")
	NewServer(nil).ServeFile(rr, req, path, Options{})

	if rr.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServeFile_HeadHasNoBody(t *testing.T) {
	path := writeFile(t, "narration.wav", "RIFFdata")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/", nil)
	NewServer(nil).ServeFile(rr, req, path, Options{})

	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("response = %d, body %d bytes", rr.Code, rr.Body.Len())
	}
	if got := rr.Header().Get("Content-Length"); got != "8" {
		t.Errorf("Content-Length = %q", got)
	}
}

func TestServeFile_Missing(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	NewServer(nil).ServeFile(rr, req, filepath.Join(t.TempDir(), "gone.mp4"), Options{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
