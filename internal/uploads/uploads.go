package uploads

import (
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Upload kinds map to folders under the base directory.
const (
	KindPoster       = "posters"
	KindCertTemplate = "cert_templates"
	KindProfile      = "profiles"
)

// Storage is the binary storage collaborator: it accepts uploaded files and
// hands back a stable reference path. The rest of the system only stores
// and forwards that reference string.
type Storage struct {
	baseDir string
}

func New(baseDir string) (*Storage, error) {
	for _, kind := range []string{KindPoster, KindCertTemplate, KindProfile} {
		if err := os.MkdirAll(filepath.Join(baseDir, kind), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create uploads dir: %w", err)
		}
	}
	return &Storage{baseDir: baseDir}, nil
}

func (s *Storage) Dir() string {
	return s.baseDir
}

// Save writes the uploaded file under its kind folder with a unique name
// and returns the "/uploads/..." reference.
func (s *Storage) Save(kind string, fh *multipart.FileHeader) (string, error) {
	if err := checkContentType(kind, fh.Header.Get("Content-Type")); err != nil {
		return "", err
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + filepath.Ext(fh.Filename)
	dst, err := os.Create(filepath.Join(s.baseDir, kind, name))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return "/uploads/" + kind + "/" + name, nil
}

func checkContentType(kind, contentType string) error {
	switch kind {
	case KindPoster, KindProfile:
		if !strings.HasPrefix(contentType, "image/") {
			return fmt.Errorf("not an image upload: %s", contentType)
		}
	case KindCertTemplate:
		if contentType != "application/pdf" {
			return fmt.Errorf("not a PDF upload: %s", contentType)
		}
	default:
		return fmt.Errorf("unknown upload kind: %s", kind)
	}
	return nil
}

// Resolve maps a stored "/uploads/..." reference back to a disk path,
// refusing anything that escapes the base directory.
func (s *Storage) Resolve(ref string) (string, error) {
	rel := strings.TrimPrefix(ref, "/uploads/")
	if rel == ref || rel == "" {
		return "", fmt.Errorf("invalid upload reference: %s", ref)
	}

	path := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid upload reference: %s", ref)
	}
	return path, nil
}

// TotalSize walks the uploads tree and sums file sizes.
func (s *Storage) TotalSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure uploads dir: %w", err)
	}
	return total, nil
}
