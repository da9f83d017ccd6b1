package models

import "time"

type Config struct {
	Port          string
	DBPath        string
	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MediaDir      string
	ModelsFile    string
	DefaultLang   string
	PollInterval  time.Duration
	RetryDelay    time.Duration
	SeedAPIKeys   []string
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusGenerating TaskStatus = "generating"
	StatusPolling    TaskStatus = "polling"
	StatusComplete   TaskStatus = "complete"
	StatusError      TaskStatus = "error"
)

// Active reports whether a task in this status holds the single generation slot.
func (s TaskStatus) Active() bool {
	return s == StatusGenerating || s == StatusPolling
}

func (s TaskStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s TaskStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusGenerating:
		return 1
	case StatusPolling:
		return 2
	case StatusComplete, StatusError:
		return 3
	}
	return -1
}

// CanTransition enforces pending -> generating -> polling -> {complete, error}.
// polling -> polling is allowed (one per poll iteration) and error -> error
// only refines the message.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s == next {
		return s == StatusPolling || s == StatusError
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

type ImageRef struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

type Settings struct {
	Prompt      string    `json:"prompt"`
	Image       *ImageRef `json:"image,omitempty"`
	Model       string    `json:"model"`
	AspectRatio string    `json:"aspectRatio"`
	Resolution  string    `json:"resolution"`
}

const (
	ModelVeoFast = "veo-3.1-fast-generate-preview"
	ModelVeoHQ   = "veo-3.1-generate-preview"

	AspectWide = "16:9"
	AspectTall = "9:16"

	Resolution720  = "720p"
	Resolution1080 = "1080p"
)

func DefaultSettings() Settings {
	return Settings{
		Model:       ModelVeoFast,
		AspectRatio: AspectWide,
		Resolution:  Resolution720,
	}
}

// Operation is the handle of a long-running remote generation job.
type Operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	VideoURI string `json:"videoUri,omitempty"`
	Error    string `json:"error,omitempty"`
}

type GenerationTask struct {
	ID        string     `json:"id"`
	Prompt    string     `json:"prompt"`
	Settings  Settings   `json:"settings"`
	Status    TaskStatus `json:"status"`
	Operation *Operation `json:"-"`
	VideoURL  string     `json:"videoUrl,omitempty"`
	Error     string     `json:"error,omitempty"`
	KeyIndex  int        `json:"keyIndex"`
	RetryOf   string     `json:"retryOf,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
