package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pypod/pypod/hostfunc"
	"github.com/pypod/pypod/interp"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage Python packages in the asset directory",
	Long: `Install and manage Python packages available to chunks.

Packages are downloaded directly from PyPI (no pip required).
Only pure Python wheels are supported - packages with C extensions
must come bundled with the runtime instead.`,
}

var depsInstallCmd = &cobra.Command{
	Use:   "install [packages...]",
	Short: "Install packages from PyPI",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDepsInstall,
}

var depsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Run:   runDepsList,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove [packages...]",
	Short: "Remove packages",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDepsRemove,
}

var depsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all installed packages",
	Run:   runDepsClear,
}

func init() {
	depsCmd.AddCommand(depsInstallCmd, depsListCmd, depsRemoveCmd, depsClearCmd)
	rootCmd.AddCommand(depsCmd)
}

func depsPackageDir() string {
	return interp.PackagesPath(cfg.AssetDir)
}

func runDepsInstall(cmd *cobra.Command, args []string) {
	install := hostfunc.NewInstaller(hostfunc.InstallerConfig{
		PackageDir: depsPackageDir(),
	})

	for _, spec := range args {
		name, version := parsePackageSpec(spec)
		fmt.Printf("Installing %s...\n", name)

		installArgs := map[string]any{"name": name}
		if version != "" {
			installArgs["version"] = version
		}

		result, err := install(cmd.Context(), installArgs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error installing %s: %v\n", name, err)
			os.Exit(1)
		}
		if info, ok := result.(map[string]any); ok {
			fmt.Printf("  Installed %v %v\n", info["name"], info["version"])
		}
	}
	fmt.Println("Done.")
}

// parsePackageSpec splits "pydantic==2.0" into name and exact version.
// Range operators are accepted but the version constraint is dropped: the
// index resolves to the latest release.
func parsePackageSpec(spec string) (name, version string) {
	if idx := strings.Index(spec, "=="); idx != -1 {
		return spec[:idx], spec[idx+2:]
	}
	for _, op := range []string{">=", "<=", "~=", "!="} {
		if idx := strings.Index(spec, op); idx != -1 {
			return spec[:idx], ""
		}
	}
	return spec, ""
}

func runDepsList(cmd *cobra.Command, args []string) {
	dir := depsPackageDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No packages installed.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasSuffix(entry.Name(), ".dist-info") && !strings.HasPrefix(entry.Name(), "__") {
			names = append(names, entry.Name())
		}
	}

	if len(names) == 0 {
		fmt.Println("No packages installed.")
		return
	}

	fmt.Printf("Packages in %s:\n", dir)
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func runDepsRemove(cmd *cobra.Command, args []string) {
	dir := depsPackageDir()
	for _, pkg := range args {
		pkgPath := filepath.Join(dir, pkg)
		if err := os.RemoveAll(pkgPath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove %s: %v\n", pkg, err)
			continue
		}

		entries, _ := os.ReadDir(dir)
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), pkg) && strings.HasSuffix(entry.Name(), ".dist-info") {
				os.RemoveAll(filepath.Join(dir, entry.Name()))
			}
		}

		fmt.Printf("Removed %s\n", pkg)
	}
}

func runDepsClear(cmd *cobra.Command, args []string) {
	if err := os.RemoveAll(depsPackageDir()); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: failed to clear packages: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Packages cleared.")
}
