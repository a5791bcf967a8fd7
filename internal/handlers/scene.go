package handlers

import (
	"github.com/koios/matrx-display/internal/mailbox"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

// SceneInstaller validates scene payloads and hands them to the compositor.
// It is shared by the HTTP API and every scene feed.
type SceneInstaller struct {
	scenes *mailbox.Signal[*models.SceneConfig]
	logger *zap.Logger
}

// NewSceneInstaller creates an installer writing into scenes
func NewSceneInstaller(scenes *mailbox.Signal[*models.SceneConfig], logger *zap.Logger) *SceneInstaller {
	return &SceneInstaller{scenes: scenes, logger: logger}
}

// InstallPayload decodes a wire-format configuration and installs it. A CBOR
// null payload clears the scene. Nothing is signaled on error.
func (s *SceneInstaller) InstallPayload(data []byte) error {
	if models.IsClearPayload(data) {
		s.Clear()
		return nil
	}

	cfg, err := models.DecodeConfiguration(data)
	if err != nil {
		return err
	}
	return s.Install(cfg)
}

// Install validates cfg and signals it
func (s *SceneInstaller) Install(cfg *models.Configuration) error {
	scene, err := models.NewSceneConfig(cfg)
	if err != nil {
		return err
	}

	s.scenes.Signal(scene)
	s.logger.Info("Scene installed",
		zap.Int("elements", len(scene.Screen.Elements)),
		zap.Int("styles", len(scene.Styles)))
	return nil
}

// Clear removes the current scene
func (s *SceneInstaller) Clear() {
	s.scenes.Signal(nil)
	s.logger.Info("Scene cleared")
}
