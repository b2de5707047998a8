package media

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidtube-serverless/internal/httpx"
)

const (
	stagedPrefix       = "staged-"
	multipartMemory    = 8 << 20
	multipartOverhead  = 1 << 20
	defaultUploadLimit = 10 << 20
)

// Intake stages uploaded files on local disk before they are pushed to a Host.
type Intake struct {
	dir      string
	maxBytes int64
}

func NewIntake(dir string, maxBytes int64) (*Intake, error) {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "vidtube-uploads")
	}
	if maxBytes <= 0 {
		maxBytes = defaultUploadLimit
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Intake{dir: dir, maxBytes: maxBytes}, nil
}

func (i *Intake) Dir() string {
	return i.dir
}

// Staged holds the local paths of files staged for one request.
type Staged struct {
	paths map[string]string
	req   *http.Request
}

// Path returns the staged path for a form field, or "" when it was not uploaded.
func (s *Staged) Path(field string) string {
	if s == nil {
		return ""
	}
	return s.paths[field]
}

// Cleanup removes every staged file and the multipart temp files.
func (s *Staged) Cleanup() {
	if s == nil {
		return
	}
	for _, p := range s.paths {
		_ = os.Remove(p)
	}
	if s.req != nil && s.req.MultipartForm != nil {
		_ = s.req.MultipartForm.RemoveAll()
	}
}

// Stage parses the request form and copies each present file field into the
// upload dir. Non-multipart requests are parsed as plain forms with no files.
func (i *Intake) Stage(w http.ResponseWriter, r *http.Request, fields ...string) (*Staged, error) {
	staged := &Staged{paths: make(map[string]string, len(fields)), req: r}

	r.Body = http.MaxBytesReader(w, r.Body, i.maxBytes*int64(max(len(fields), 1))+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			if err := r.ParseForm(); err != nil {
				return staged, httpx.BadRequest("invalid form body")
			}
			return staged, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return staged, httpx.BadRequest("file is too large")
		}
		return staged, httpx.BadRequest("invalid multipart form")
	}

	for _, field := range fields {
		path, err := i.stageField(r, field)
		if err != nil {
			staged.Cleanup()
			return staged, err
		}
		if path != "" {
			staged.paths[field] = path
		}
	}

	return staged, nil
}

func (i *Intake) stageField(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", httpx.BadRequest(fmt.Sprintf("invalid %s file", field))
	}
	defer file.Close()

	if header.Size == 0 {
		return "", nil
	}
	if header.Size > i.maxBytes {
		return "", httpx.BadRequest(fmt.Sprintf("%s file is too large", field))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.CreateTemp(i.dir, stagedPrefix+"*"+ext)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	if _, err := io.Copy(dst, io.LimitReader(file, i.maxBytes)); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return dst.Name(), nil
}

// PurgeOlderThan deletes staged files last modified before cutoff, which only
// happens when a request died before its Cleanup ran.
func (i *Intake) PurgeOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), stagedPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(i.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}
