// Package blob is the upload relay's storage backend: it validates incoming
// attachment bodies and persists them under timestamp-prefixed keys with a
// stable public URL.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/returnlab/portal/internal/apperr"
)

// Kind selects the validation profile for a slot. General attachments accept
// images only; the two document slots (identity document, proof of address)
// additionally accept PDFs with a higher size ceiling.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

const (
	maxImageSize    = 5 << 20
	maxDocumentSize = 10 << 20
)

var imageContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

const pdfContentType = "application/pdf"

type StoredFile struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type FileStore struct {
	dir     string
	baseURL string
	now     func() time.Time
}

func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "returns"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Dir is the root the HTTP server exposes under /uploads/.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save validates and persists one upload, returning its public URL. Bodies
// over the ceiling and undeclared content types are rejected before anything
// touches disk.
func (s *FileStore) Save(kind Kind, contentType, filename string, body io.Reader) (*StoredFile, error) {
	limit, err := s.validate(kind, contentType)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, apperr.Upstream("read upload body", err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.Validation("file too large, maximum %dMB", limit>>20)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("empty upload body")
	}

	key := fmt.Sprintf("returns/%d-%s", s.now().UnixMilli(), sanitizeFilename(filename))
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, apperr.Upstream("write upload", err)
	}

	return &StoredFile{
		Key:  key,
		URL:  s.baseURL + "/uploads/" + key,
		Size: int64(len(data)),
	}, nil
}

func (s *FileStore) validate(kind Kind, contentType string) (int64, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	if _, ok := imageContentTypes[contentType]; ok {
		return maxImageSize, nil
	}
	if kind == KindDocument && contentType == pdfContentType {
		return maxDocumentSize, nil
	}
	if kind == KindDocument {
		return 0, apperr.Validation("invalid file type, only images and PDF allowed")
	}
	return 0, apperr.Validation("invalid file type, only images allowed")
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, ".-_") == "" {
		return "upload"
	}
	return out
}
