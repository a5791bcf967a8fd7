package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koios/matrx-display/pkg/models"
	"gopkg.in/yaml.v3"
)

// loadConfiguration reads a scene file. The format follows the extension:
// .yaml/.yml, .json, anything else is taken as wire-format CBOR.
func loadConfiguration(path string) (*models.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg models.Configuration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		decoded, err := models.DecodeConfiguration(data)
		if err != nil {
			return nil, err
		}
		cfg = *decoded
	}
	return &cfg, nil
}

// checkConfiguration runs the same validation the display applies on install
func checkConfiguration(cfg *models.Configuration) (*models.SceneConfig, error) {
	scene, err := models.NewSceneConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuration rejected: %w", err)
	}
	return scene, nil
}

// loadFrames builds a sprite from frame files shown frameTime ms each
func loadFrames(files []string, frameTime uint16) (*models.Resource, error) {
	def := models.SpriteDefinition{Frames: files, FrameTime: frameTime}
	return def.Resource("")
}
