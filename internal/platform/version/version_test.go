package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"long commit is shortened", Info{Version: "v1.2.0", Commit: "3f2a9c1d8e7b"}, "v1.2.0 (3f2a9c1)"},
		{"defaults", Info{Version: "dev", Commit: "unknown"}, "dev (unknown)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
