package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// Directory and file names for capsule.
const (
	DataDirName    = ".capsule"    // Data directory created by 'capsule init'
	AppDirName     = "capsule"     // Directory name under XDG_CONFIG_HOME
	ConfigFileName = "config.toml" // Config file name
)

// Default store locations inside the data directory.
const (
	JSONStoreFile  = "tasks.json"
	GitStoreDir    = "git"
	BadgerStoreDir = "badger"
)

// DataDir returns the data directory for a project root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// DataConfigPath returns the data directory config path.
func DataConfigPath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFileName)
}

// GlobalConfigDir returns the global capsule directory path.
// configHome is typically XDG_CONFIG_HOME or ~/.config (resolved by caller).
func GlobalConfigDir(configHome string) string {
	return filepath.Join(configHome, AppDirName)
}

// GlobalConfigPath returns the global config path.
func GlobalConfigPath(configHome string) string {
	return filepath.Join(GlobalConfigDir(configHome), ConfigFileName)
}

// TaskLogPath returns the path to the task log file.
func TaskLogPath(dataDir string, taskID int) string {
	return filepath.Join(dataDir, "logs", fmt.Sprintf("task-%d.log", taskID))
}

// GlobalLogPath returns the path to the global log file.
func GlobalLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "capsule.log")
}

// TaskRef returns the display reference of a task.
// Format: #<id>
func TaskRef(taskID int) string {
	return "#" + strconv.Itoa(taskID)
}

// taskRefPattern matches task references: 12 or #12
var taskRefPattern = regexp.MustCompile(`^#?(\d+)$`)

// ParseTaskRef extracts the task ID from a reference such as "#12" or "12".
// Returns the task ID and true on success, or 0 and false if not.
func ParseTaskRef(ref string) (int, bool) {
	matches := taskRefPattern.FindStringSubmatch(ref)
	if matches == nil {
		return 0, false
	}
	id, err := strconv.Atoi(matches[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
