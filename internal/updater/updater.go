package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/go-github/v73/github"
	"go.uber.org/zap"
)

const (
	repoOwner = "maxvaer"
	repoName  = "w3ccheck"
)

// ErrUpToDate is returned by Check when the running version is the latest.
var ErrUpToDate = errors.New("already up to date")

// Updater replaces the running binary with the latest GitHub release.
type Updater struct {
	APIURL   string // GitHub API base, empty for api.github.com
	Current  string // running version, "dev" always updates
	ExecPath string // binary to replace, defaults to os.Executable
	GOOS     string
	GOARCH   string
	Client   *http.Client
	Out      io.Writer
	Logger   *zap.Logger
}

// New returns an Updater for the running binary.
func New(current string, out io.Writer, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		Current: current,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
		Client:  &http.Client{Timeout: 120 * time.Second},
		Out:     out,
		Logger:  logger.Named("updater"),
	}
}

// Update checks GitHub for the latest release and replaces the binary.
func (u *Updater) Update(ctx context.Context) error {
	fmt.Fprintf(u.Out, "[*] Current version: %s\n", u.Current)
	fmt.Fprintf(u.Out, "[*] Checking for updates...\n")

	release, err := u.Check(ctx)
	if errors.Is(err, ErrUpToDate) {
		fmt.Fprintf(u.Out, "[+] Already up to date (%s)\n", u.Current)
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}

	fmt.Fprintf(u.Out, "[*] New version available: %s -> %s\n", u.Current, release.GetTagName())

	asset, err := u.findAsset(release.Assets)
	if err != nil {
		return err
	}

	fmt.Fprintf(u.Out, "[*] Downloading %s...\n", asset.GetName())
	bin, err := u.downloadAndExtract(ctx, asset)
	if err != nil {
		return fmt.Errorf("downloading update: %w", err)
	}

	if err := u.replaceBinary(bin); err != nil {
		return fmt.Errorf("replacing binary: %w", err)
	}

	fmt.Fprintf(u.Out, "[+] Updated to %s\n", release.GetTagName())
	return nil
}

// Check fetches the latest release and returns ErrUpToDate if it matches
// the running version.
func (u *Updater) Check(ctx context.Context) (*github.RepositoryRelease, error) {
	client := github.NewClient(u.Client)
	if u.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(u.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid API URL: %w", err)
		}
		client.BaseURL = base
	}

	release, resp, err := client.Repositories.GetLatestRelease(ctx, repoOwner, repoName)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("no releases found at %s/%s", repoOwner, repoName)
		}
		return nil, err
	}
	u.Logger.Debug("latest release", zap.String("tag", release.GetTagName()), zap.Int("assets", len(release.Assets)))

	latest := strings.TrimPrefix(release.GetTagName(), "v")
	current := strings.TrimPrefix(u.Current, "v")
	if current != "dev" && latest == current {
		return release, ErrUpToDate
	}
	return release, nil
}

func (u *Updater) findAsset(assets []*github.ReleaseAsset) (*github.ReleaseAsset, error) {
	// e.g. w3ccheck_linux_amd64.tar.gz, w3ccheck-windows-amd64.zip
	patterns := []string{
		fmt.Sprintf("%s_%s_%s", repoName, u.GOOS, u.GOARCH),
		fmt.Sprintf("%s-%s-%s", repoName, u.GOOS, u.GOARCH),
	}

	for _, asset := range assets {
		name := strings.ToLower(asset.GetName())
		for _, pattern := range patterns {
			if strings.Contains(name, pattern) {
				return asset, nil
			}
		}
	}

	return nil, fmt.Errorf("no release asset found for %s/%s, available assets: %s",
		u.GOOS, u.GOARCH, assetNames(assets))
}

func assetNames(assets []*github.ReleaseAsset) string {
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.GetName()
	}
	return strings.Join(names, ", ")
}

func (u *Updater) downloadAndExtract(ctx context.Context, asset *github.ReleaseAsset) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.GetBrowserDownloadURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(asset.GetName())
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(data, u.binaryName())
	case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
		return extractTarGz(data, u.binaryName())
	default:
		// Assume the asset is a raw binary.
		return data, nil
	}
}

func (u *Updater) binaryName() string {
	if u.GOOS == "windows" {
		return repoName + ".exe"
	}
	return repoName
}

func extractZip(data []byte, binaryName string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	for _, f := range r.File {
		if strings.EqualFold(filepath.Base(f.Name), binaryName) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("binary %q not found in zip archive", binaryName)
}

func extractTarGz(data []byte, binaryName string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if filepath.Base(hdr.Name) == binaryName && hdr.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("binary %q not found in tar.gz archive", binaryName)
}

func (u *Updater) replaceBinary(newBin []byte) error {
	execPath := u.ExecPath
	if execPath == "" {
		p, err := os.Executable()
		if err != nil {
			return err
		}
		execPath = p
	}
	execPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return err
	}

	oldPath := execPath + ".old"
	_ = os.Remove(oldPath)

	if err := os.Rename(execPath, oldPath); err != nil {
		return fmt.Errorf("renaming current binary: %w", err)
	}

	if err := os.WriteFile(execPath, newBin, 0o755); err != nil {
		_ = os.Rename(oldPath, execPath)
		return fmt.Errorf("writing new binary: %w", err)
	}

	// Fails on Windows while the old binary is still running.
	if err := os.Remove(oldPath); err != nil {
		u.Logger.Debug("old binary left behind", zap.String("path", oldPath), zap.Error(err))
	}
	return nil
}
