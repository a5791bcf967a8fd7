package handlers

import (
	"errors"
	"testing"

	"github.com/koios/matrx-display/internal/mailbox"
	"github.com/koios/matrx-display/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSceneInstaller(t *testing.T) {
	scenes := mailbox.New[*models.SceneConfig]()
	installer := NewSceneInstaller(scenes, zap.NewNop())

	require.NoError(t, installer.InstallPayload(encodeConfig(t, testConfiguration())))
	scene, ok := scenes.TryTake()
	require.True(t, ok)
	require.NotNil(t, scene)
	assert.Contains(t, scene.Styles, "small")

	require.NoError(t, installer.InstallPayload([]byte{0xf6}))
	scene, ok = scenes.TryTake()
	require.True(t, ok)
	assert.Nil(t, scene)
}

func TestSceneInstaller_Rejects(t *testing.T) {
	scenes := mailbox.New[*models.SceneConfig]()
	installer := NewSceneInstaller(scenes, zap.NewNop())

	err := installer.Install(&models.Configuration{})
	assert.True(t, errors.Is(err, models.ErrNoScreen))

	cfg := testConfiguration().AddStyle("bad", models.TextStyle{TextColor: "red", Font: models.Font5X7})
	err = installer.Install(cfg)
	var styleErr *models.InvalidStyleError
	assert.True(t, errors.As(err, &styleErr))

	assert.Error(t, installer.InstallPayload([]byte{0xff, 0x00}))
	assert.False(t, scenes.Signaled())
}

func TestSceneInstaller_LastWins(t *testing.T) {
	scenes := mailbox.New[*models.SceneConfig]()
	installer := NewSceneInstaller(scenes, zap.NewNop())

	first := testConfiguration()
	second := testConfiguration()
	second.Screens[0].Elements = second.Screens[0].Elements[:1]

	require.NoError(t, installer.Install(first))
	require.NoError(t, installer.Install(second))

	scene, ok := scenes.TryTake()
	require.True(t, ok)
	assert.Len(t, scene.Screen.Elements, 1)
	assert.Equal(t, uint64(1), scenes.Drops())
}
