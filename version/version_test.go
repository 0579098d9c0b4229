package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func setBuild(t *testing.T, v, commit string) {
	t.Helper()
	oldV, oldC := Version, Commit
	Version, Commit = v, commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })
}

func TestGet(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		release bool
	}{
		{"dev", "dev", false},
		{"v0.4.0", "0.4.0", true},
		{"1.2.3-rc.1", "1.2.3-rc.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			setBuild(t, tt.raw, "0123456789abcdef")
			info := Get()
			assert.Equal(t, tt.want, info.Version)
			assert.Equal(t, tt.release, info.Release)
			assert.Equal(t, "0123456", info.Short())
			assert.Contains(t, info.String(), "scholar "+tt.want+" (commit 0123456")
		})
	}
}

func TestShort_KeepsShortCommit(t *testing.T) {
	setBuild(t, "dev", "dev")
	assert.Equal(t, "dev", Get().Short())
}
