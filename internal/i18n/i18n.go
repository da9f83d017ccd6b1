package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"path"
	"strings"
	"sync"
)

//go:embed locales/*.json
var bundled embed.FS

type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
	defaultLang  string
}

// NewLocalizer loads the bundled locales.
func NewLocalizer(defaultLang string) *Localizer {
	return NewLocalizerFS(defaultLang, bundled)
}

func NewLocalizerFS(defaultLang string, fsys fs.FS) *Localizer {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		defaultLang:  defaultLang,
	}
	l.loadTranslations(fsys)
	return l
}

func (l *Localizer) loadTranslations(fsys fs.FS) {
	files, err := fs.Glob(fsys, "locales/*.json")
	if err != nil {
		log.Printf("[I18n] Cannot list locales: %v", err)
		return
	}

	loaded := make(map[string]map[string]string, len(files))
	for _, file := range files {
		messages, err := readLocale(fsys, file)
		if err != nil {
			log.Printf("[I18n] Skipping %s: %v", file, err)
			continue
		}
		loaded[strings.TrimSuffix(path.Base(file), ".json")] = messages
	}

	l.mu.Lock()
	l.translations = loaded
	l.mu.Unlock()
	log.Printf("[I18n] Loaded %d languages", len(loaded))
}

func readLocale(fsys fs.FS, file string) (map[string]string, error) {
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, err
	}
	var messages map[string]string
	if err := json.Unmarshal(content, &messages); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return messages, nil
}

func (l *Localizer) DefaultLang() string {
	return l.defaultLang
}

// Get returns the message for key in lang, falling back to the default
// language and finally to the key itself.
func (l *Localizer) Get(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, code := range []string{lang, l.defaultLang} {
		if msg, ok := l.translations[code][key]; ok {
			return msg
		}
	}
	return key
}

// Getf formats the translation of key with args.
func (l *Localizer) Getf(lang, key string, args ...any) string {
	return fmt.Sprintf(l.Get(lang, key), args...)
}

// Bundle returns every key for lang merged over the default language.
func (l *Localizer) Bundle(lang string) map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string)
	for k, v := range l.translations[l.defaultLang] {
		out[k] = v
	}
	for k, v := range l.translations[lang] {
		out[k] = v
	}
	return out
}
