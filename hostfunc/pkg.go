package hostfunc

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultIndexURL is the JSON API of the public package index.
const DefaultIndexURL = "https://pypi.org/pypi"

// InstallerConfig configures the ecosystem package installer.
type InstallerConfig struct {
	// PackageDir is where extracted wheels land. The guest sees this
	// directory through its read-only mount.
	PackageDir string
	// IndexURL overrides the package index. Defaults to [DefaultIndexURL].
	IndexURL string
	// Client is the HTTP client for index and wheel fetches.
	Client *http.Client
	// Blocked maps distribution names to a human-readable refusal reason.
	// Nil means [DefaultBlocked].
	Blocked map[string]string
}

// DefaultBlocked lists distributions that cannot work inside the runtime:
// native extensions that are not bundled, and packages that need raw sockets.
var DefaultBlocked = map[string]string{
	"tensorflow":   "requires C extensions",
	"torch":        "requires C extensions",
	"psycopg2":     "requires C extensions",
	"mysqlclient":  "requires C extensions",
	"grpcio":       "requires C extensions",
	"cryptography": "requires C extensions",
	"bcrypt":       "requires C extensions",
	"aiohttp":      "requires raw sockets",
	"uvicorn":      "requires raw sockets",
	"gunicorn":     "requires raw sockets",
}

type indexFile struct {
	PackageType string `json:"packagetype"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
}

type indexResponse struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	Urls []indexFile `json:"urls"`
}

// NewInstaller returns the pkg_install host function. It resolves a
// distribution on the package index, downloads a pure-Python wheel, and
// extracts it into the package directory where the guest can import it.
//
// Args: name (required), version (optional exact version).
func NewInstaller(cfg InstallerConfig) Func {
	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultIndexURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	if cfg.Blocked == nil {
		cfg.Blocked = DefaultBlocked
	}

	return func(ctx context.Context, args map[string]any) (any, error) {
		errb := oops.In("hostfunc")

		name, _ := args["name"].(string)
		if name == "" {
			return nil, errb.New("package name required")
		}
		if !validDistName(name) {
			return nil, errb.Errorf("invalid package name %q", name)
		}
		if reason, blocked := cfg.Blocked[strings.ToLower(name)]; blocked {
			return nil, errb.Errorf("%s is not supported in the runtime (%s)", name, reason)
		}

		infoURL := fmt.Sprintf("%s/%s/json", cfg.IndexURL, name)
		if version, ok := args["version"].(string); ok && version != "" {
			if !validDistName(version) {
				return nil, errb.Errorf("invalid version %q", version)
			}
			infoURL = fmt.Sprintf("%s/%s/%s/json", cfg.IndexURL, name, version)
		}

		info, err := fetchIndex(ctx, cfg.Client, infoURL)
		if err != nil {
			return nil, errb.With("package", name).Wrap(err)
		}

		wheelURL := findWheel(info.Urls)
		if wheelURL == "" {
			return nil, errb.Errorf("no pure-Python wheel available for %s", name)
		}

		if err := fetchAndExtract(ctx, cfg.Client, wheelURL, cfg.PackageDir); err != nil {
			return nil, errb.With("package", name).Wrap(err)
		}

		return map[string]any{
			"name":    info.Info.Name,
			"version": info.Info.Version,
		}, nil
	}
}

func validDistName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return s != ""
}

func fetchIndex(ctx context.Context, client *http.Client, url string) (*indexResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch package info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("package not found on index")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("index returned status %d", resp.StatusCode)
	}

	var info indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parse index response: %w", err)
	}
	return &info, nil
}

// findWheel picks a wheel that carries no compiled code. Only py3-none-any
// and universal py2.py3-none-any builds qualify.
func findWheel(files []indexFile) string {
	for _, f := range files {
		if f.PackageType != "bdist_wheel" {
			continue
		}
		filename := strings.ToLower(f.Filename)
		if strings.Contains(filename, "-py3-none-any") ||
			strings.Contains(filename, "-py2.py3-none-any") {
			return f.URL
		}
	}
	return ""
}

func fetchAndExtract(ctx context.Context, client *http.Client, wheelURL, destDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wheelURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download wheel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wheel download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "pypod-*.whl")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download wheel: %w", err)
	}
	tmp.Close()

	return extractWheel(tmpPath, destDir)
}

func extractWheel(wheelPath, destDir string) error {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".so") || strings.HasSuffix(name, ".pyd") ||
			strings.HasSuffix(name, ".dylib") {
			return fmt.Errorf("wheel contains compiled code (%s)", filepath.Base(f.Name))
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	for _, f := range r.File {
		// Metadata directories are not importable code.
		if strings.Contains(f.Name, ".dist-info/") {
			continue
		}

		destPath, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		if err := writeZipFile(f, destPath); err != nil {
			return err
		}
	}
	return nil
}

// safeJoin rejects archive members that would escape the destination.
func safeJoin(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("wheel member escapes package dir: %s", name)
	}
	return destPath, nil
}

func writeZipFile(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
