package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathsUnderDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(SettingsPathEnv, "")
	ResetPaths()
	t.Cleanup(ResetPaths)

	assert.Equal(t, filepath.Join(home, ".farcode"), DataDir())
	assert.Equal(t, filepath.Join(home, ".farcode", "farcode.log"), LogFile())
	assert.Equal(t, filepath.Join(home, ".farcode", "history.db"), HistoryFile())
	assert.Equal(t, filepath.Join(home, ".farcode", "settings.json"), SettingsFile())
	assert.DirExists(t, DataDir())
}

func TestSettingsFileOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(SettingsPathEnv, "/etc/farcode/settings.json")
	ResetPaths()
	t.Cleanup(ResetPaths)

	assert.Equal(t, "/etc/farcode/settings.json", SettingsFile())
}
