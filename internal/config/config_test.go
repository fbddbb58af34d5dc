package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linux-surface/iptsd/internal/ipterrors"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "iptsd.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesOverridesOnDefaults(t *testing.T) {
	path := writeConfig(t, `
[Config]
invert_x = true
width = 260
height = 170

[Contacts]
contacts_neutral = average
contacts_activation_threshold = 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.GetInvertX())
	assert.False(t, cfg.GetInvertY())
	assert.Equal(t, float32(260), cfg.GetWidth())
	assert.Equal(t, float32(170), cfg.GetHeight())
	assert.Equal(t, NeutralAverage, cfg.GetContactsNeutral())
	assert.Equal(t, float32(30)/255, cfg.GetContactsActivationThreshold())
	// Untouched fields keep compiled-in defaults.
	assert.Equal(t, float32(20)/255, cfg.GetContactsDeactivationThreshold())
	assert.Equal(t, 3, cfg.GetContactsTemporalWindow())
}

func TestLoadMissingDimensionsIsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `width = 260`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ipterrors.ErrInvalidConfig)
}

func TestLoadUnrecognizedNeutralIsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
width = 260
height = 170
contacts_neutral = bogus
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ipterrors.ErrInvalidConfig)
}

func TestLoadRejectsWrongExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iptsd.txt")
	require.NoError(t, os.WriteFile(path, []byte("width = 1\nheight = 1\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ipterrors.ErrInvalidConfig)
}

func TestValidateRejectsZeroDimensions(t *testing.T) {
	cfg := Empty()
	zero := float32(0)
	cfg.Width = &zero
	cfg.Height = &zero

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ipterrors.ErrInvalidConfig)
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg := Empty()
	assert.Equal(t, NeutralMode, cfg.GetContactsNeutral())
	assert.Equal(t, float32(24)/255, cfg.GetContactsActivationThreshold())
	assert.Equal(t, float32(30), cfg.GetConeAngle())
	assert.Equal(t, float32(5), cfg.GetConeDistance())
	assert.True(t, cfg.GetTouchCheckCone())
}
