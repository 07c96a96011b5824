package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"
)

func init() {
	for ext, typ := range map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".webm": "video/webm",
		".mkv":  "video/x-matroska",
		".mov":  "video/quicktime",
		".mp3":  "audio/mpeg",
	} {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// MediaRepository defines media library operations.
type MediaRepository interface {
	Register(ctx context.Context, path string) (Media, bool, error)
	Get(ctx context.Context, name string) (Media, error)
	List(ctx context.Context) ([]Media, error)
}

type MediaStore struct {
	db *gorm.DB
}

func NewMediaStore(db *gorm.DB) *MediaStore {
	return &MediaStore{db: db}
}

// Register records the file at path. It reports false when the path was
// already in the library.
func (ms *MediaStore) Register(ctx context.Context, path string) (Media, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Media{}, false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	var existing Media
	err = ms.db.WithContext(ctx).Where("path = ?", abs).First(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Media{}, false, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Media{}, false, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return Media{}, false, fmt.Errorf("%s is a directory", abs)
	}

	checksum, err := hashFile(abs)
	if err != nil {
		return Media{}, false, err
	}

	media := Media{
		Name:           filepath.Base(abs),
		Path:           abs,
		Size:           info.Size(),
		MimeDescriptor: DetectMime(abs),
		Checksum:       checksum,
	}
	if err := ms.db.WithContext(ctx).Create(&media).Error; err != nil {
		return Media{}, false, fmt.Errorf("failed to save media: %w", err)
	}
	return media, true, nil
}

func (ms *MediaStore) Get(ctx context.Context, name string) (Media, error) {
	var media Media
	err := ms.db.WithContext(ctx).Where("name = ?", name).Order("id DESC").First(&media).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Media{}, fmt.Errorf("media %q: %w", name, ErrNotFound)
	}
	return media, err
}

func (ms *MediaStore) List(ctx context.Context) ([]Media, error) {
	var media []Media
	err := ms.db.WithContext(ctx).Order("created_at, id").Find(&media).Error
	return media, err
}

// DetectMime sniffs the content type of the file at path. When sniffing
// fails or yields a generic type the extension decides.
func DetectMime(path string) string {
	if m, err := mimetype.DetectFile(path); err == nil && !m.Is("application/octet-stream") && !m.Is("text/plain") {
		return m.String()
	}
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
