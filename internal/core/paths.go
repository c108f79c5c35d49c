package core

import (
	"os"
	"path/filepath"
)

// SettingsPathEnv overrides the location of the settings file.
const SettingsPathEnv = "FARCODE_SETTINGS_PATH"

type Paths struct {
	HomeDir      string
	DataDir      string
	LogFile      string
	HistoryFile  string
	SettingsFile string
}

var defaultPaths *Paths

func ensureDefaultPaths() {
	if defaultPaths == nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			panic(err)
		}

		dataDir := filepath.Join(homeDir, ".farcode")
		defaultPaths = &Paths{
			HomeDir:      homeDir,
			DataDir:      dataDir,
			LogFile:      filepath.Join(dataDir, "farcode.log"),
			HistoryFile:  filepath.Join(dataDir, "history.db"),
			SettingsFile: filepath.Join(dataDir, "settings.json"),
		}

		err = os.MkdirAll(defaultPaths.DataDir, 0755)
		if err != nil {
			panic(err)
		}
	}
}

func HomeDir() string {
	ensureDefaultPaths()
	return defaultPaths.HomeDir
}

func DataDir() string {
	ensureDefaultPaths()
	return defaultPaths.DataDir
}

func LogFile() string {
	ensureDefaultPaths()
	return defaultPaths.LogFile
}

func HistoryFile() string {
	ensureDefaultPaths()
	return defaultPaths.HistoryFile
}

// SettingsFile returns the settings file path, honoring FARCODE_SETTINGS_PATH.
func SettingsFile() string {
	if override := os.Getenv(SettingsPathEnv); override != "" {
		return override
	}
	ensureDefaultPaths()
	return defaultPaths.SettingsFile
}

// ResetPaths clears the cached paths, forcing them to be reinitialized.
// This is primarily used for testing purposes.
func ResetPaths() {
	defaultPaths = nil
}
