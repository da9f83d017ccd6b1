package core

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"veoGenerator/internal/models"
)

type AIModel struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	APIModelID   string   `json:"api_model_id"`
	Description  string   `json:"description"`
	SupportedOps []string `json:"supported_ops"`
	Ratios       []string `json:"ratios"`
	Resolutions  []string `json:"resolutions"`
}

type Provider struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Type   string    `json:"type"`
	Models []AIModel `json:"models"`
}

var ErrUnsupportedOption = errors.New("unsupported option")

//go:embed models.json
var defaultRegistry []byte

// AI_REGISTRY holds the loaded providers. It starts with the built-in list.
var AI_REGISTRY = mustParse(defaultRegistry)

func mustParse(data []byte) []Provider {
	providers, err := parse(data)
	if err != nil {
		panic(err)
	}
	return providers
}

func parse(data []byte) ([]Provider, error) {
	var providers []Provider
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("failed to parse models json: %w", err)
	}
	if len(providers) == 0 {
		return nil, errors.New("models json has no providers")
	}
	return providers, nil
}

// LoadRegistry replaces AI_REGISTRY with the providers in filePath. A missing
// file keeps the built-in registry.
func LoadRegistry(filePath string) error {
	file, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read models file: %w", err)
	}

	providers, err := parse(file)
	if err != nil {
		return err
	}

	AI_REGISTRY = providers
	return nil
}

func GetModelByID(id string) *AIModel {
	for _, p := range AI_REGISTRY {
		for _, m := range p.Models {
			if m.ID == id {
				return &m
			}
		}
	}
	return nil
}

// ValidateSettings checks model, ratio and resolution against the registry.
func ValidateSettings(s models.Settings) error {
	model := GetModelByID(s.Model)
	if model == nil {
		return fmt.Errorf("%w: model %q", ErrUnsupportedOption, s.Model)
	}
	if !slices.Contains(model.Ratios, s.AspectRatio) {
		return fmt.Errorf("%w: aspect ratio %q for %s", ErrUnsupportedOption, s.AspectRatio, model.Name)
	}
	if !slices.Contains(model.Resolutions, s.Resolution) {
		return fmt.Errorf("%w: resolution %q for %s", ErrUnsupportedOption, s.Resolution, model.Name)
	}
	return nil
}
