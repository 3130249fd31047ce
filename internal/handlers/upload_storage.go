package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	errUnsupportedMedia = errors.New("unsupported file type")
	errFileTooLarge     = errors.New("file too large")
)

const uploadsRoute = "/uploads/"

type mediaKind struct {
	label      string
	subdir     string
	maxSize    int64
	extensions map[string]struct{}
	mimes      []string
}

var (
	imageMedia = mediaKind{
		label:   "image",
		subdir:  "images",
		maxSize: 5 << 20,
		extensions: map[string]struct{}{
			".jpg":  {},
			".jpeg": {},
			".png":  {},
			".webp": {},
		},
		mimes: []string{"image/jpeg", "image/png", "image/webp"},
	}
	videoMedia = mediaKind{
		label:   "video",
		subdir:  "videos",
		maxSize: 100 << 20,
		extensions: map[string]struct{}{
			".mp4":  {},
			".webm": {},
			".mov":  {},
		},
		mimes: []string{"video/mp4", "video/webm", "video/quicktime"},
	}
)

// UploadStorage keeps uploaded media under Dir and serves it from /uploads.
type UploadStorage struct {
	Dir           string
	PublicBaseURL string
}

func NewUploadStorage(dir, publicBaseURL string) *UploadStorage {
	return &UploadStorage{
		Dir:           dir,
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

// Save validates file against kind and returns its public URL.
func (s *UploadStorage) Save(file *multipart.FileHeader, kind mediaKind) (string, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := kind.extensions[extension]; !ok {
		return "", fmt.Errorf("%w: %s only", errUnsupportedMedia, kind.allowedList())
	}
	if file.Size > kind.maxSize {
		return "", fmt.Errorf("%w: %s max %dMB", errFileTooLarge, kind.label, kind.maxSize>>20)
	}

	in, err := file.Open()
	if err != nil {
		return "", err
	}
	defer in.Close()

	detected, err := mimetype.DetectReader(in)
	if err != nil {
		return "", err
	}
	if !kind.accepts(detected) {
		return "", fmt.Errorf("%w: content is %s", errUnsupportedMedia, detected.String())
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	dir := filepath.Join(s.Dir, kind.subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[UPLOAD] failed to create directory %s: %v", dir, err)
		return "", err
	}

	filename := primitive.NewObjectID().Hex() + extension
	fullPath := filepath.Join(dir, filename)

	out, err := os.Create(fullPath)
	if err != nil {
		log.Printf("[UPLOAD] failed to create file %s: %v", fullPath, err)
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		log.Printf("[UPLOAD] failed to save file %s: %v", fullPath, err)
		_ = os.Remove(fullPath)
		return "", err
	}

	log.Printf("[UPLOAD] stored %s (%s, %d bytes)", fullPath, detected.String(), file.Size)
	return s.PublicBaseURL + uploadsRoute + path.Join(kind.subdir, filename), nil
}

// Delete removes a file previously returned by Save. URLs that do not point
// into the upload directory are ignored.
func (s *UploadStorage) Delete(publicURL string) error {
	trimmed := strings.TrimSpace(publicURL)
	if trimmed == "" {
		return nil
	}
	if s.PublicBaseURL != "" {
		trimmed = strings.TrimPrefix(trimmed, s.PublicBaseURL)
	}

	rel, ok := strings.CutPrefix(trimmed, uploadsRoute)
	if !ok {
		rel, ok = strings.CutPrefix(trimmed, strings.TrimPrefix(uploadsRoute, "/"))
	}
	if !ok {
		return nil
	}

	cleanRel := strings.TrimPrefix(path.Clean("/"+rel), "/")
	if cleanRel == "" {
		return fmt.Errorf("refusing to delete upload root: %s", publicURL)
	}

	cleanBase, err := filepath.Abs(s.Dir)
	if err != nil {
		return err
	}
	cleanTarget := filepath.Clean(filepath.Join(cleanBase, filepath.FromSlash(cleanRel)))
	if !strings.HasPrefix(cleanTarget, cleanBase+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to delete path outside upload dir: %s", publicURL)
	}

	if err := os.Remove(cleanTarget); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (k mediaKind) accepts(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range k.mimes {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}

func (k mediaKind) allowedList() string {
	exts := make([]string, 0, len(k.extensions))
	for ext := range k.extensions {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(exts)
	return strings.Join(exts, "/")
}
