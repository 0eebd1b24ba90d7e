// Package playback streams local media (source clips and finished exports)
// to the browser with byte-range support so previews can seek.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Service serves one file per request.
type Service interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string, opts Options) error
}

// Options adjust a response.
type Options struct {
	// DownloadName marks the response as an attachment with this name.
	DownloadName string
}

var mediaTypes = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".mkv": "video/x-matroska",
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
	".srt": "application/x-subrip",
	".ass": "text/x-ssa",
	".edl": "text/plain; charset=utf-8",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string, opts Options) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "not a file", http.StatusNotFound)
		return nil
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(filePath))
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))
	if opts.DownloadName != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": opts.DownloadName}))
	}

	rng, partial, err := ParseRange(r.Header.Get("Range"), size)
	if err == ErrUnsatisfiable {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// a malformed header is ignored and the whole file is served
	if !partial {
		rng = Range{Start: 0, End: size - 1}
	}

	h.Set("Content-Length", strconv.FormatInt(max(0, rng.ContentLength()), 10))
	status := http.StatusOK
	if partial {
		h.Set("Content-Range", rng.ContentRange(size))
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead || size == 0 {
		return nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	start := time.Now()
	n, err := io.CopyN(w, file, rng.ContentLength())
	if err != nil && s.logger != nil {
		// usually the client seeking away
		s.logger.Debug("playback copy ended early", "bytes", n, "error", err)
	}
	if s.logger != nil {
		s.logger.Debug("served file", "bytes", n, "partial", partial, "duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}
