package media

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestVideoLifecycle(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	ref, err := s.SaveVideo("2025-10-19T05:00:00.123Z", []byte("mp4"))
	if err != nil {
		t.Fatalf("SaveVideo() error = %v", err)
	}
	if ref != "/videos/2025-10-19T05-00-00.123Z.mp4" {
		t.Errorf("SaveVideo() ref = %q", ref)
	}

	path, err := s.VideoPath(strings.TrimPrefix(ref, VideoRoute))
	if err != nil {
		t.Fatalf("VideoPath() error = %v", err)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "mp4" {
		t.Fatalf("video content = %q, %v", data, err)
	}

	if err := s.ReleaseVideo(ref); err != nil {
		t.Fatalf("ReleaseVideo() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
	if err := s.ReleaseVideo(ref); err != nil {
		t.Errorf("second ReleaseVideo() error = %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "..", "../veo.db", `a\b`} {
		if _, err := s.VideoPath(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("VideoPath(%q) error = %v", name, err)
		}
	}
	if err := s.ReleaseVideo("/elsewhere/x.mp4"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("ReleaseVideo(foreign) error = %v", err)
	}
}

func TestImageLifecycle(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ref, err := s.SaveImage([]byte{0x89, 'P', 'N', 'G'}, "image/png")
	if err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}
	if !strings.HasSuffix(ref.Name, ".png") || ref.MIMEType != "image/png" {
		t.Errorf("unexpected ref %+v", ref)
	}

	data, err := s.LoadImage(ref)
	if err != nil || !bytes.Equal(data, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("LoadImage() = %v, %v", data, err)
	}

	if err := s.DeleteImage(ref); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	if _, err := s.LoadImage(ref); err == nil {
		t.Error("expected image to be gone")
	}
}
