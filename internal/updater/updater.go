// Package updater implements the synchronize round trip against the update server:
// check for an update, download and verify the package, then install or stage it.
package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/httpclient"
	pkgsync "github.com/stacklok/toolhive-update-agent/internal/sync"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
	"github.com/stacklok/toolhive-update-agent/internal/versions"
)

// ErrHashMismatch is returned when a downloaded package does not match the advertised hash
var ErrHashMismatch = errors.New("package hash mismatch")

// Updater talks to the update server and manages installed packages
type Updater struct {
	client     httpclient.Client
	store      state.Store
	installer  *Installer
	endpoint   string
	appVersion string

	clientIDMu sync.Mutex
	clientID   string
}

var _ pkgsync.Synchronizer = (*Updater)(nil)

// Option configures an Updater
type Option func(*Updater)

// WithHTTPClient replaces the HTTP client used for checks and downloads
func WithHTTPClient(client httpclient.Client) Option {
	return func(u *Updater) {
		u.client = client
	}
}

// New creates an Updater for the given configuration.
// store is used to persist the generated client identifier.
func New(cfg *config.Config, store state.Store, opts ...Option) (*Updater, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.UpdateServer.Endpoint == "" {
		return nil, fmt.Errorf("update server endpoint is required")
	}

	u := &Updater{
		store:      store,
		installer:  NewInstaller(cfg.GetDataDir()),
		endpoint:   cfg.UpdateServer.Endpoint,
		appVersion: cfg.UpdateServer.GetAppVersion(),
		clientID:   cfg.UpdateServer.ClientID,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.client == nil {
		u.client = httpclient.NewDefaultClient(cfg.UpdateServer.GetTimeout())
	}
	return u, nil
}

// Installer returns the package installer
func (u *Updater) Installer() *Installer {
	return u.installer
}

// ApplyPending promotes a package staged by an earlier onNextRestart install.
// It is called once at agent start, before the coordinator runs.
func (u *Updater) ApplyPending() (*PackageInfo, error) {
	pkg, err := u.installer.ApplyPending()
	if err != nil {
		return nil, fmt.Errorf("failed to apply pending package: %w", err)
	}
	if pkg != nil {
		slog.Info("Applied pending package", "label", pkg.Label, "hash", pkg.PackageHash)
	}
	return pkg, nil
}

// Synchronize performs one check, download and install cycle
func (u *Updater) Synchronize(
	ctx context.Context,
	opts *config.SyncOptions,
	onStatus pkgsync.StatusFunc,
	onProgress pkgsync.ProgressFunc,
) (*pkgsync.Result, error) {
	report := func(s pkgsync.Status) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	result, err := u.synchronize(ctx, opts, report, onProgress)
	if err != nil {
		report(pkgsync.StatusUnknownError)
		return nil, err
	}
	report(result.Status)
	return result, nil
}

func (u *Updater) synchronize(
	ctx context.Context,
	opts *config.SyncOptions,
	report pkgsync.StatusFunc,
	onProgress pkgsync.ProgressFunc,
) (*pkgsync.Result, error) {
	if opts == nil {
		return nil, fmt.Errorf("sync options are required")
	}

	report(pkgsync.StatusCheckingForUpdate)

	current, err := u.installer.Current()
	if err != nil {
		return nil, err
	}
	pending, err := u.installer.Pending()
	if err != nil {
		return nil, err
	}

	req := checkRequest{
		deploymentKey: opts.DeploymentKey,
		appVersion:    u.appVersion,
		clientID:      u.ensureClientID(ctx),
	}
	if current != nil {
		req.packageHash = current.PackageHash
	}

	info, err := u.checkForUpdate(ctx, req)
	if err != nil {
		return nil, err
	}

	if !info.IsAvailable || u.alreadyHave(info, current, pending) {
		return &pkgsync.Result{Status: pkgsync.StatusUpToDate}, nil
	}

	if versions.IsIncompatibleTarget(info.AppVersion, u.appVersion) {
		slog.Info("Ignoring update built for an incompatible binary",
			"label", info.Label,
			"target_version", info.AppVersion,
			"app_version", u.appVersion)
		return &pkgsync.Result{
			Status:      pkgsync.StatusUpdateIgnored,
			Label:       info.Label,
			PackageHash: info.PackageHash,
			Mandatory:   info.IsMandatory,
		}, nil
	}

	report(pkgsync.StatusDownloadingPackage)
	archivePath, err := u.download(ctx, info, onProgress)
	if err != nil {
		return nil, err
	}

	report(pkgsync.StatusInstallingUpdate)
	mode := opts.GetInstallMode()
	if info.IsMandatory {
		mode = opts.GetMandatoryInstallMode()
	}
	pkg, err := u.installer.Install(info, archivePath, mode)
	if err != nil {
		_ = os.Remove(archivePath)
		return nil, fmt.Errorf("failed to install package %q: %w", info.Label, err)
	}

	slog.Info("Update package installed",
		"label", pkg.Label,
		"hash", pkg.PackageHash,
		"mode", mode,
		"mandatory", pkg.IsMandatory)

	return &pkgsync.Result{
		Status:      pkgsync.StatusUpdateInstalled,
		Label:       pkg.Label,
		PackageHash: pkg.PackageHash,
		Mandatory:   pkg.IsMandatory,
	}, nil
}

// alreadyHave reports whether the offered package is installed or staged.
// An offer without a hash never matches.
func (*Updater) alreadyHave(info *UpdateInfo, current, pending *PackageInfo) bool {
	hash := strings.ToLower(info.PackageHash)
	if hash == "" {
		return false
	}
	if current != nil && strings.ToLower(current.PackageHash) == hash {
		return true
	}
	return pending != nil && strings.ToLower(pending.PackageHash) == hash
}

// download writes the package to a temp file in the packages directory and verifies its hash.
// The caller owns the returned file.
func (u *Updater) download(ctx context.Context, info *UpdateInfo, onProgress pkgsync.ProgressFunc) (string, error) {
	if err := os.MkdirAll(u.installer.Dir(), 0750); err != nil {
		return "", fmt.Errorf("failed to create packages directory: %w", err)
	}
	file, err := os.CreateTemp(u.installer.Dir(), "download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	path := file.Name()

	hasher := sha256.New()
	_, err = u.client.Download(ctx, info.DownloadURL, io.MultiWriter(file, hasher), func(received, total int64) {
		if total < 0 {
			total = info.PackageSize
		}
		if onProgress != nil {
			onProgress(pkgsync.Progress{ReceivedBytes: received, TotalBytes: total})
		}
	})
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to download package %q: %w", info.Label, err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(got, info.PackageHash) {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, info.PackageHash, got)
	}
	return path, nil
}

// ensureClientID returns the installation identifier, generating and persisting one on first use.
// A store failure falls back to an identifier that lives for this process only.
func (u *Updater) ensureClientID(ctx context.Context) string {
	u.clientIDMu.Lock()
	defer u.clientIDMu.Unlock()

	if u.clientID != "" {
		return u.clientID
	}

	id, ok, err := u.store.Get(ctx, state.ClientIDKey)
	if err != nil {
		slog.Warn("Failed to read client id", "error", err)
	}
	if err == nil && ok && id != "" {
		u.clientID = id
		return id
	}

	id = uuid.NewString()
	if err := u.store.Set(ctx, state.ClientIDKey, id); err != nil {
		slog.Warn("Failed to persist client id", "error", err)
	}
	u.clientID = id
	return id
}
