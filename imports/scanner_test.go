package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPlainImport(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantModule string
		wantAlias  string
	}{
		{"simple", "import pandas", "pandas", ""},
		{"dotted", "import a.b.c", "a.b.c", ""},
		{"aliased", "import pandas as pd", "pandas", "pd"},
		{"leading whitespace", "   import numpy", "numpy", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decls := Scan(tt.code)
			require.Len(t, decls, 1)
			assert.Equal(t, tt.wantModule, decls[0].Module)
			assert.Equal(t, tt.wantAlias, decls[0].Alias)
			assert.False(t, decls[0].Selective)
		})
	}
}

func TestScanSelectiveImport(t *testing.T) {
	decls := Scan("from x.y import m as n, p")
	require.Len(t, decls, 1)

	d := decls[0]
	assert.Equal(t, "x.y", d.Module)
	assert.True(t, d.Selective)
	require.Len(t, d.Items, 2)
	assert.Equal(t, Item{Name: "m", Alias: "n"}, d.Items[0])
	assert.Equal(t, Item{Name: "p"}, d.Items[1])
}

func TestScanWildcardImport(t *testing.T) {
	decls := Scan("from os.path import *")
	require.Len(t, decls, 1)
	assert.Equal(t, []Item{{Name: "*"}}, decls[0].Items)
}

func TestScanSkipsNonImports(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"comment", "# import pandas"},
		{"blank", "   "},
		{"empty", ""},
		{"bare import keyword", "import  "},
		{"expression", "x = 1 + 2"},
		{"import in string is still a line scan miss", "print('hi')"},
		{"from without import", "from x.y"},
		{"invalid module", "import 123abc"},
		{"relative import", "from . import helpers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Scan(tt.code))
		})
	}
}

func TestScanRecordsLineNumbers(t *testing.T) {
	decls := Scan("x = 1\nimport json\n\nimport pandas")
	require.Len(t, decls, 2)
	assert.Equal(t, 2, decls[0].Line)
	assert.Equal(t, 4, decls[1].Line)
}

func TestScanMultiLineFormsNotRecognized(t *testing.T) {
	// Parenthesized lists and continuations span physical lines; the scanner
	// does not join them.
	decls := Scan("from pkg import (\n    a,\n    b,\n)")
	assert.Empty(t, decls)
}

func TestExtractPackageNames(t *testing.T) {
	code := "import pandas as pd\n" +
		"from os import path\n" +
		"# import skip\n" +
		"import  \n" +
		"from numpy import array, mean as m"

	names := ExtractPackageNames(Scan(code))
	assert.Equal(t, []string{"numpy", "pandas"}, names)
}

func TestExtractPackageNamesTopLevelSegment(t *testing.T) {
	names := ExtractPackageNames(Scan("import a.b.c"))
	assert.Equal(t, []string{"a"}, names)
}

func TestExtractPackageNamesExcludesStdlib(t *testing.T) {
	code := "import os\nimport json\nfrom sys import path\nimport os.path"
	assert.Empty(t, ExtractPackageNames(Scan(code)))
}

func TestExtractPackageNamesOrderIndependent(t *testing.T) {
	decls := Scan("import zeta\nimport alpha\nimport midway")
	want := ExtractPackageNames(decls)

	permuted := []Declaration{decls[1], decls[2], decls[0]}
	assert.Equal(t, want, ExtractPackageNames(permuted))

	// Idempotent: duplicates collapse.
	doubled := append(append([]Declaration{}, decls...), decls...)
	assert.Equal(t, want, ExtractPackageNames(doubled))
}

func TestDeclarationValid(t *testing.T) {
	tests := []struct {
		name string
		decl Declaration
		want bool
	}{
		{"plain", Declaration{Module: "pandas"}, true},
		{"dotted with alias", Declaration{Module: "a.b", Alias: "c"}, true},
		{"wildcard item", Declaration{Module: "os", Items: []Item{{Name: "*"}}}, true},
		{"empty module", Declaration{}, false},
		{"bad alias", Declaration{Module: "x", Alias: "1y"}, false},
		{"bad item", Declaration{Module: "x", Items: []Item{{Name: "a-b"}}}, false},
		{"bad item alias", Declaration{Module: "x", Items: []Item{{Name: "a", Alias: "b!"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.decl.Valid())
		})
	}
}

func TestIsStdlibModule(t *testing.T) {
	assert.True(t, IsStdlibModule("os"))
	assert.True(t, IsStdlibModule("json"))
	assert.True(t, IsStdlibModule("__future__"))
	assert.False(t, IsStdlibModule("pandas"))
	assert.False(t, IsStdlibModule(""))
}

func BenchmarkScan(b *testing.B) {
	code := "import pandas as pd\nfrom numpy import array, mean as m\nx = 1\n# comment\nfrom os import path\n"
	b.ReportAllocs()
	for b.Loop() {
		Scan(code)
	}
}
