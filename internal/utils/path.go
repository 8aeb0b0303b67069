package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
)

// AppDir is the directory name used under the platform config location.
const AppDir = "pickserve"

// PathResolver provides robust path resolution for the pickserve binary
type PathResolver struct {
	executablePath string
	executableDir  string
	homeDir        string
	configDir      string
}

// NewPathResolver creates a new path resolver that determines the executable location
func NewPathResolver() (*PathResolver, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}

	// Resolve any symlinks to get the actual binary location
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}

	pr := &PathResolver{
		executablePath: execPath,
		executableDir:  filepath.Dir(execPath),
		homeDir:        homeDir,
		configDir:      platformConfigDir(homeDir),
	}
	log.Debugf("PathResolver initialized: exec=%s, configDir=%s", execPath, pr.configDir)
	return pr, nil
}

// platformConfigDir returns the appropriate config directory for the platform
func platformConfigDir(homeDir string) string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, ".config", AppDir)
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, AppDir)
		}
		return filepath.Join(homeDir, ".config", AppDir)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppDir)
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppDir)
	default:
		return filepath.Join(homeDir, "."+AppDir)
	}
}

// GetDataDir resolves the data directory containing binary chunk files
// It tries multiple locations in order of preference:
// 1. User-specified path (if absolute)
// 2. Relative to executable directory
// 3. Relative to current working directory (fallback)
// 4. data/ next to the executable, its parent, or the config dir
func (pr *PathResolver) GetDataDir(userSpecifiedPath string) (string, error) {
	candidates := pr.dataDirCandidates(userSpecifiedPath)
	for _, path := range candidates {
		if IsDataDir(path) {
			log.Debugf("Found valid data directory: %s", path)
			return path, nil
		}
		log.Debugf("Data directory candidate not valid: %s", path)
	}
	// Nothing found, return the most likely path for error reporting
	return pr.ResolveRelativePath(userSpecifiedPath), nil
}

func (pr *PathResolver) dataDirCandidates(userSpecifiedPath string) []string {
	var candidates []string
	if filepath.IsAbs(userSpecifiedPath) {
		candidates = append(candidates, userSpecifiedPath)
	} else {
		candidates = append(candidates, filepath.Join(pr.executableDir, userSpecifiedPath))
		if cwd, err := os.Getwd(); err == nil {
			candidates = append(candidates, filepath.Join(cwd, userSpecifiedPath))
		}
	}
	return append(candidates,
		filepath.Join(pr.executableDir, "data"),
		filepath.Join(filepath.Dir(pr.executableDir), "data"),
		filepath.Join(pr.configDir, "data"),
	)
}

// IsDataDir checks if a directory contains at least one dict_*.bin chunk file
func IsDataDir(path string) bool {
	if stat, err := os.Stat(path); err != nil || !stat.IsDir() {
		return false
	}
	matches, err := filepath.Glob(filepath.Join(path, "dict_*.bin"))
	return err == nil && len(matches) > 0
}

// GetConfigPath returns the full path for a file in the config directory.
// It falls back to ~/.pickserve, the temp dir and finally the executable dir
// when the config dir is not writable.
func (pr *PathResolver) GetConfigPath(filename string) (string, error) {
	dirs := []string{
		pr.configDir,
		filepath.Join(pr.homeDir, "."+AppDir),
		filepath.Join(os.TempDir(), AppDir),
		pr.executableDir,
	}
	for i, dir := range dirs {
		if CheckDirStatus(dir).Writable {
			path := filepath.Join(dir, filename)
			if i > 0 {
				log.Warnf("Using fallback config location: %s", path)
			}
			return path, nil
		}
	}
	tempPath := filepath.Join(os.TempDir(), filename)
	log.Warnf("Using temporary file: %s", tempPath)
	return tempPath, nil
}

// GetHistoryPath returns where selection history is persisted.
func (pr *PathResolver) GetHistoryPath() (string, error) {
	return pr.GetConfigPath("history.msgpack")
}

// ResolveRelativePath resolves a path relative to the executable directory
func (pr *PathResolver) ResolveRelativePath(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	return filepath.Join(pr.executableDir, relativePath)
}
