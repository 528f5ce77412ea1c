// Package imports extracts module dependencies from Python source chunks.
//
// The scanner is intentionally a lexical line scan, not a parser: each
// physical line is classified on its own, and statements spanning multiple
// lines (parenthesized import lists, backslash continuations) are not
// recognized. That keeps the accepted grammar small and auditable, which is
// the right trade-off for best-effort dependency discovery.
package imports

import (
	"sort"
	"strings"
	"unicode"
)

// Item is one imported name in a selective import, with an optional alias.
type Item struct {
	Name  string
	Alias string
}

// Declaration is a single recognized import statement.
type Declaration struct {
	// Module is the dotted module path ("pandas", "os.path").
	Module string
	// Alias is the bound name for plain imports ("import pandas as pd").
	Alias string
	// Items holds the imported names for selective imports.
	Items []Item
	// Selective is true for "from X import ..." forms.
	Selective bool
	// Line is the 1-based source line the declaration was found on.
	Line int
}

// Scan extracts import declarations from code, one physical line at a time.
// Blank lines, comment lines, and lines matching neither import form are
// skipped silently.
func Scan(code string) []Declaration {
	var decls []Declaration

	for i, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if d, ok := scanLine(line, i+1); ok {
			decls = append(decls, d)
		}
	}

	return decls
}

func scanLine(line string, lineNo int) (Declaration, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Declaration{}, false
	}

	switch fields[0] {
	case "import":
		return scanPlain(fields, lineNo)
	case "from":
		return scanSelective(fields, lineNo)
	}
	return Declaration{}, false
}

// scanPlain matches "import <dotted-path>" and "import <dotted-path> as <name>".
func scanPlain(fields []string, lineNo int) (Declaration, bool) {
	if len(fields) != 2 && len(fields) != 4 {
		return Declaration{}, false
	}
	if !isDottedPath(fields[1]) {
		return Declaration{}, false
	}

	d := Declaration{Module: fields[1], Line: lineNo}

	if len(fields) == 4 {
		if fields[2] != "as" || !isIdentifier(fields[3]) {
			return Declaration{}, false
		}
		d.Alias = fields[3]
	}

	return d, true
}

// scanSelective matches "from <dotted-path> import <item>[, <item>...]" where
// an item is a bare name, the wildcard, or "<name> as <alias>".
func scanSelective(fields []string, lineNo int) (Declaration, bool) {
	if len(fields) < 4 || fields[2] != "import" {
		return Declaration{}, false
	}
	if !isDottedPath(fields[1]) {
		return Declaration{}, false
	}

	d := Declaration{Module: fields[1], Selective: true, Line: lineNo}

	for _, part := range strings.Split(strings.Join(fields[3:], " "), ",") {
		item, ok := scanItem(part)
		if !ok {
			return Declaration{}, false
		}
		d.Items = append(d.Items, item)
	}

	return d, true
}

func scanItem(part string) (Item, bool) {
	tokens := strings.Fields(part)
	switch len(tokens) {
	case 1:
		if tokens[0] == "*" || isIdentifier(tokens[0]) {
			return Item{Name: tokens[0]}, true
		}
	case 3:
		if tokens[1] == "as" && isIdentifier(tokens[0]) && isIdentifier(tokens[2]) {
			return Item{Name: tokens[0], Alias: tokens[2]}, true
		}
	}
	return Item{}, false
}

// ExtractPackageNames derives the unique set of top-level package names from
// declarations, excluding Python standard-library modules. The result is
// sorted; permuting the input yields the same output.
func ExtractPackageNames(decls []Declaration) []string {
	seen := make(map[string]struct{})
	for _, d := range decls {
		top := d.Module
		if idx := strings.IndexByte(top, '.'); idx != -1 {
			top = top[:idx]
		}
		if IsStdlibModule(top) {
			continue
		}
		seen[top] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether the declaration's module, alias, and items conform to
// Python identifier rules. The scanner only emits conforming declarations;
// this is a defensive check for declarations built by hand.
func (d Declaration) Valid() bool {
	if !isDottedPath(d.Module) {
		return false
	}
	if d.Alias != "" && !isIdentifier(d.Alias) {
		return false
	}
	for _, item := range d.Items {
		if item.Name != "*" && !isIdentifier(item.Name) {
			return false
		}
		if item.Alias != "" && !isIdentifier(item.Alias) {
			return false
		}
	}
	return true
}

func isDottedPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if !isIdentifier(seg) {
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
