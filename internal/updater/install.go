package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

const (
	packagesDirName  = "packages"
	currentFileName  = "current.json"
	pendingFileName  = "pending.json"
	packageExtension = ".pkg"
)

// PackageInfo describes an installed or staged package
type PackageInfo struct {
	Label       string    `json:"label"`
	AppVersion  string    `json:"appVersion,omitempty"`
	PackageHash string    `json:"packageHash"`
	PackageSize int64     `json:"packageSize"`
	Description string    `json:"description,omitempty"`
	IsMandatory bool      `json:"isMandatory,omitempty"`
	Path        string    `json:"path"`
	InstalledAt time.Time `json:"installedAt"`
}

// Installer manages the packages directory.
// current.json names the active package, pending.json a package staged for the next start.
type Installer struct {
	dir string
	mu  sync.Mutex
}

// NewInstaller creates an installer rooted at dataDir/packages
func NewInstaller(dataDir string) *Installer {
	return &Installer{dir: filepath.Join(dataDir, packagesDirName)}
}

// Dir returns the packages directory
func (i *Installer) Dir() string {
	return i.dir
}

// Current returns the active package, or nil when nothing is installed
func (i *Installer) Current() (*PackageInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.readInfo(currentFileName)
}

// Pending returns the package staged for the next start, or nil
func (i *Installer) Pending() (*PackageInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.readInfo(pendingFileName)
}

// Install moves the verified archive at archivePath into the packages directory.
// With InstallModeImmediate it becomes current; otherwise it is staged as pending.
func (i *Installer) Install(info *UpdateInfo, archivePath string, mode config.InstallMode) (*PackageInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := os.MkdirAll(i.dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create packages directory: %w", err)
	}

	target := filepath.Join(i.dir, info.PackageHash+packageExtension)
	if err := os.Rename(archivePath, target); err != nil {
		return nil, fmt.Errorf("failed to move package into place: %w", err)
	}

	pkg := &PackageInfo{
		Label:       info.Label,
		AppVersion:  info.AppVersion,
		PackageHash: info.PackageHash,
		PackageSize: info.PackageSize,
		Description: info.Description,
		IsMandatory: info.IsMandatory,
		Path:        target,
		InstalledAt: time.Now().UTC(),
	}

	if mode == config.InstallModeImmediate {
		previous, err := i.readInfo(currentFileName)
		if err != nil {
			slog.Warn("Ignoring unreadable current package metadata", "error", err)
		}
		if err := i.writeInfo(currentFileName, pkg); err != nil {
			return nil, err
		}
		// An immediate install supersedes anything staged earlier
		staged, _ := i.readInfo(pendingFileName)
		if err := i.removeInfo(pendingFileName); err != nil {
			return nil, err
		}
		i.removeArchive(previous, pkg)
		i.removeArchive(staged, pkg)
		return pkg, nil
	}

	staged, _ := i.readInfo(pendingFileName)
	if err := i.writeInfo(pendingFileName, pkg); err != nil {
		return nil, err
	}
	current, _ := i.readInfo(currentFileName)
	if staged != nil && (current == nil || staged.PackageHash != current.PackageHash) {
		i.removeArchive(staged, pkg)
	}
	return pkg, nil
}

// ApplyPending promotes a staged package to current.
// It returns nil when nothing was staged.
func (i *Installer) ApplyPending() (*PackageInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	pending, err := i.readInfo(pendingFileName)
	if err != nil || pending == nil {
		return nil, err
	}
	if _, err := os.Stat(pending.Path); err != nil {
		_ = i.removeInfo(pendingFileName)
		return nil, fmt.Errorf("staged package %q is missing: %w", pending.Label, err)
	}

	previous, err := i.readInfo(currentFileName)
	if err != nil {
		slog.Warn("Ignoring unreadable current package metadata", "error", err)
	}
	pending.InstalledAt = time.Now().UTC()
	if err := i.writeInfo(currentFileName, pending); err != nil {
		return nil, err
	}
	if err := i.removeInfo(pendingFileName); err != nil {
		return nil, err
	}
	i.removeArchive(previous, pending)
	return pending, nil
}

func (i *Installer) readInfo(name string) (*PackageInfo, error) {
	data, err := os.ReadFile(filepath.Join(i.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	var info PackageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return &info, nil
}

func (i *Installer) writeInfo(name string, info *PackageInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	path := filepath.Join(i.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (i *Installer) removeInfo(name string) error {
	err := os.Remove(filepath.Join(i.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// removeArchive deletes old's archive unless it is the one keep points at
func (*Installer) removeArchive(old, keep *PackageInfo) {
	if old == nil || old.Path == "" || old.Path == keep.Path {
		return
	}
	if err := os.Remove(old.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove superseded package", "label", old.Label, "path", old.Path, "error", err)
	}
}
