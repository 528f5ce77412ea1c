// Fetches the Python WASM runtime into the asset directory. Skips the
// download when the binary is already present.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const defaultRuntimeURL = "https://github.com/vmware-labs/webassembly-language-runtimes/releases/download/python%2F3.12.0%2B20231211-040d5a6/python-3.12.0.wasm"

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: download <asset-dir> [url]")
		os.Exit(1)
	}

	assetDir := os.Args[1]
	url := defaultRuntimeURL
	if len(os.Args) == 3 {
		url = os.Args[2]
	}

	output := filepath.Join(assetDir, "python.wasm")
	if _, err := os.Stat(output); err == nil {
		return
	}

	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "download failed: %s\n", resp.Status)
		os.Exit(1)
	}

	// Write to a temp name first so a failed download never leaves a
	// truncated binary behind.
	tmp := output + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	f.Close()

	if err := os.Rename(tmp, output); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
