package media

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"veoGenerator/internal/models"
)

const (
	videosDir  = "videos"
	uploadsDir = "uploads"

	// VideoRoute is the URL prefix under which saved videos are served.
	VideoRoute = "/videos/"
)

var ErrInvalidName = errors.New("invalid media name")

// Store keeps downloaded videos and uploaded start images on disk.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{videosDir, uploadsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media dir: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

// VideoName maps a task id onto a file name safe for every filesystem.
func VideoName(taskID string) string {
	return strings.NewReplacer(":", "-", "/", "-", "\\", "-").Replace(taskID) + ".mp4"
}

// SaveVideo writes the video for taskID and returns its playable reference.
func (s *Store) SaveVideo(taskID string, data []byte) (string, error) {
	name := VideoName(taskID)
	if err := writeFileAtomic(filepath.Join(s.dir, videosDir, name), data); err != nil {
		return "", fmt.Errorf("failed to save video: %w", err)
	}
	return VideoRoute + name, nil
}

// VideoPath resolves a file name under the videos directory.
func (s *Store) VideoPath(name string) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, videosDir, name), nil
}

// ReleaseVideo deletes the file behind a reference returned by SaveVideo.
// Releasing an unknown or already released reference is not an error.
func (s *Store) ReleaseVideo(ref string) error {
	name, ok := strings.CutPrefix(ref, VideoRoute)
	if !ok || !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, ref)
	}
	err := os.Remove(filepath.Join(s.dir, videosDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) SaveImage(data []byte, mimeType string) (models.ImageRef, error) {
	ext := ".img"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	ref := models.ImageRef{Name: uuid.NewString() + ext, MIMEType: mimeType}
	if err := writeFileAtomic(filepath.Join(s.dir, uploadsDir, ref.Name), data); err != nil {
		return models.ImageRef{}, fmt.Errorf("failed to save image: %w", err)
	}
	return ref, nil
}

func (s *Store) LoadImage(ref models.ImageRef) ([]byte, error) {
	if !validName(ref.Name) {
		return nil, ErrInvalidName
	}
	return os.ReadFile(filepath.Join(s.dir, uploadsDir, ref.Name))
}

func (s *Store) DeleteImage(ref models.ImageRef) error {
	if !validName(ref.Name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(s.dir, uploadsDir, ref.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
