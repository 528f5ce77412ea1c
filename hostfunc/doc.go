// Package hostfunc provides host functions callable from guest Python code.
//
// Guest code has no implicit access to the host. Each capability is a Go
// function registered by name in a [Registry]; the interpreter bridges guest
// calls to it over the session protocol.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// The built-in capability is the ecosystem package installer, created with
// [NewInstaller] and registered as pkg_install. The guest's installer shim
// delegates to it, and it resolves pure-Python wheels from the package index
// into the shared package directory.
package hostfunc
