package pipeline

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// hostConfigDir resolves the host strict-local config source directory from
// OPENCODE_CONFIG_DIR, defaulting to ~/.config/opencode (spec.md §6.2).
func hostConfigDir() string {
	if v := os.Getenv("OPENCODE_CONFIG_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "opencode")
}

// hostDataDir resolves the host strict-local data source directory from
// XDG_DATA_HOME, defaulting to ~/.local/share/opencode (spec.md §6.2).
func hostDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "opencode")
}

// bootstrapConfigSandbox wipes sandboxConfigDir and recursively copies
// sourceConfigDir into it, if sourceConfigDir exists. If it doesn't, the
// sandbox is left as an empty directory (spec.md §4.6 "Bootstrap config").
func bootstrapConfigSandbox(sourceConfigDir, sandboxConfigDir string) error {
	if err := os.RemoveAll(sandboxConfigDir); err != nil {
		return err
	}
	if err := os.MkdirAll(sandboxConfigDir, 0o755); err != nil {
		return err
	}
	if fi, err := os.Stat(sourceConfigDir); err != nil || !fi.IsDir() {
		return nil
	}
	return copyTree(sourceConfigDir, sandboxConfigDir)
}

// bootstrapDataSandbox ensures sandboxDataDir exists and, if
// sourceDataDir/auth.json exists, copies only that file in (spec.md §4.6
// "Bootstrap data").
func bootstrapDataSandbox(sourceDataDir, sandboxDataDir string) error {
	if err := os.MkdirAll(sandboxDataDir, 0o755); err != nil {
		return err
	}
	authSrc := filepath.Join(sourceDataDir, "auth.json")
	if fi, err := os.Stat(authSrc); err != nil || fi.IsDir() {
		return nil
	}
	return copyFile(authSrc, filepath.Join(sandboxDataDir, "auth.json"))
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
