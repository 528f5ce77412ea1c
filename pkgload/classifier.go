// Package pkgload resolves and loads Python packages for the embedded
// interpreter. Packages bundled with the runtime distribution load through
// the interpreter's native loader; everything else goes through the in-guest
// ecosystem installer, which fetches pure-Python wheels from PyPI.
package pkgload

// nativePackages lists distributions bundled with the runtime assets. These
// load without touching the package index.
var nativePackages = map[string]struct{}{}

func init() {
	for _, name := range []string{
		"micropip",
		"numpy",
		"pandas",
		"matplotlib",
		"scipy",
		"scikit-learn",
		"pillow",
		"opencv-python",
		"sympy",
		"networkx",
		"pyyaml",
		"beautifulsoup4",
		"lxml",
		"regex",
		"requests",
		"python-dateutil",
		"pytz",
		"packaging",
		"setuptools",
		"six",
	} {
		nativePackages[name] = struct{}{}
	}
}

// packageAliases maps import-time module names to the distribution names they
// are published under.
var packageAliases = map[string]string{
	"cv2":      "opencv-python",
	"PIL":      "pillow",
	"sklearn":  "scikit-learn",
	"bs4":      "beautifulsoup4",
	"yaml":     "pyyaml",
	"dateutil": "python-dateutil",
	"skimage":  "scikit-image",
	"Crypto":   "pycryptodome",
	"attr":     "attrs",
	"dotenv":   "python-dotenv",
	"OpenSSL":  "pyopenssl",
	"serial":   "pyserial",
	"magic":    "python-magic",
	"docx":     "python-docx",
	"pptx":     "python-pptx",
	"fitz":     "pymupdf",
	"github":   "pygithub",
	"jose":     "python-jose",
}

// IsNativelyAvailable reports whether name (an import-time name) resolves to
// a distribution bundled with the runtime.
func IsNativelyAvailable(name string) bool {
	if _, ok := nativePackages[name]; ok {
		return true
	}
	if dist, ok := packageAliases[name]; ok {
		_, bundled := nativePackages[dist]
		return bundled
	}
	return false
}

// CanonicalName returns the distribution name for an import-time name, or the
// input unchanged when no alias exists.
func CanonicalName(name string) string {
	if dist, ok := packageAliases[name]; ok {
		return dist
	}
	return name
}
