package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppManifest represents the manifest.yaml of an applet that can be baked into a sprite
type AppManifest struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Summary     string `yaml:"summary" json:"summary"`
	Description string `yaml:"desc" json:"description"`
	Author      string `yaml:"author" json:"author"`
	FileName    string `yaml:"fileName" json:"fileName"`
	PackageName string `yaml:"packageName" json:"packageName"`

	// Sprite is the store key the baked frames are written to when no key is given
	Sprite string `yaml:"sprite" json:"sprite"`
	// FrameTimeMs overrides the frame delay reported by the applet
	FrameTimeMs uint16 `yaml:"frameTimeMs" json:"frameTimeMs"`
	// Params are passed to the applet as its config
	Params map[string]string `yaml:"params" json:"params"`

	// Runtime fields (not in manifest)
	DirectoryPath string `yaml:"-" json:"directoryPath"`
	StarFilePath  string `yaml:"-" json:"starFilePath"`
}

// SpriteKey returns the store key for the applet's output
func (m *AppManifest) SpriteKey() string {
	if m.Sprite != "" {
		return m.Sprite
	}
	return m.ID
}

// LoadManifest loads a manifest.yaml file from the given directory
func LoadManifest(appDir string) (*AppManifest, error) {
	manifestPath := filepath.Join(appDir, "manifest.yaml")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest AppManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest file: %w", err)
	}

	if manifest.ID == "" {
		return nil, fmt.Errorf("manifest %s has no id", manifestPath)
	}

	manifest.DirectoryPath = appDir
	manifest.StarFilePath = filepath.Join(appDir, manifest.FileName)

	if _, err := os.Stat(manifest.StarFilePath); err != nil {
		return nil, fmt.Errorf("star file not found: %s", manifest.StarFilePath)
	}

	return &manifest, nil
}

// AppRegistry manages the collection of available applets
type AppRegistry struct {
	apps    map[string]*AppManifest
	skipped map[string]error
}

// NewAppRegistry creates a new app registry
func NewAppRegistry() *AppRegistry {
	return &AppRegistry{
		apps:    make(map[string]*AppManifest),
		skipped: make(map[string]error),
	}
}

// LoadApps scans appsDir/{app_id}/manifest.yaml. Directories with a broken
// manifest are skipped and reported by Skipped.
func (r *AppRegistry) LoadApps(appsDir string) error {
	r.apps = make(map[string]*AppManifest)
	r.skipped = make(map[string]error)

	entries, err := os.ReadDir(appsDir)
	if err != nil {
		return fmt.Errorf("failed to read apps directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		appDir := filepath.Join(appsDir, entry.Name())
		manifest, err := LoadManifest(appDir)
		if err != nil {
			r.skipped[entry.Name()] = err
			continue
		}
		r.apps[manifest.ID] = manifest
	}

	return nil
}

// Skipped returns the directories that failed to load during the last LoadApps
func (r *AppRegistry) Skipped() map[string]error {
	result := make(map[string]error, len(r.skipped))
	for k, v := range r.skipped {
		result[k] = v
	}
	return result
}

// GetApp returns an app by ID
func (r *AppRegistry) GetApp(id string) (*AppManifest, bool) {
	app, exists := r.apps[id]
	return app, exists
}

// GetAppsList returns all app manifests sorted by ID
func (r *AppRegistry) GetAppsList() []*AppManifest {
	apps := make([]*AppManifest, 0, len(r.apps))
	for _, app := range r.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps
}

// SpriteDefinition describes one sprite of a sprite sheet
type SpriteDefinition struct {
	Frames    []string `yaml:"frames" json:"frames"`
	FrameTime uint16   `yaml:"frame_time" json:"frame_time"`
}

// SpriteSheet maps sprite names to their frame files, as read from sprites.yaml
type SpriteSheet map[string]SpriteDefinition

// LoadSpriteSheet parses a sprites.yaml file
func LoadSpriteSheet(path string) (SpriteSheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sprite sheet: %w", err)
	}

	var sheet SpriteSheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("failed to parse sprite sheet: %w", err)
	}

	for name, def := range sheet {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("sprite sheet contains an empty sprite name")
		}
		if len(def.Frames) == 0 {
			return nil, fmt.Errorf("sprite %q has no frames", name)
		}
	}
	return sheet, nil
}

// Names returns the sprite names in sorted order
func (s SpriteSheet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter keeps only the named sprites. An empty filter keeps everything.
func (s SpriteSheet) Filter(names []string) SpriteSheet {
	if len(names) == 0 {
		return s
	}
	out := make(SpriteSheet)
	for _, name := range names {
		if def, ok := s[name]; ok {
			out[name] = def
		}
	}
	return out
}

// Resource reads the frame files relative to baseDir
func (d SpriteDefinition) Resource(baseDir string) (*Resource, error) {
	res := &Resource{FrameTimeMs: d.FrameTime}
	for _, frame := range d.Frames {
		path := frame
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, frame)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", path, err)
		}
		res.Frames = append(res.Frames, data)
	}
	return res, nil
}
