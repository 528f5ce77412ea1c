package pkgload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNativelyAvailable(t *testing.T) {
	tests := []struct {
		name string
		pkg  string
		want bool
	}{
		{"bundled", "numpy", true},
		{"installer itself", "micropip", true},
		{"alias to bundled", "cv2", true},
		{"alias resolves through table", "PIL", true},
		{"alias to non-bundled", "fitz", false},
		{"unknown", "leftpad", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNativelyAvailable(tt.pkg))
		})
	}
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "opencv-python", CanonicalName("cv2"))
	assert.Equal(t, "pillow", CanonicalName("PIL"))
	assert.Equal(t, "scikit-learn", CanonicalName("sklearn"))
	assert.Equal(t, "numpy", CanonicalName("numpy"))
	assert.Equal(t, "leftpad", CanonicalName("leftpad"))
}
