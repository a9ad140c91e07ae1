package versions

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildDate)
	assert.Contains(t, info.String(), "blog-publisher "+Version)
}

func TestFillFromBuildSettings(t *testing.T) {
	t.Parallel()

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2024-03-01T12:00:00Z"},
		{Key: "GOOS", Value: "linux"},
	}

	tests := []struct {
		name string
		info Info
		want Info
	}{
		{
			name: "fills empty fields",
			want: Info{Commit: "abc123", BuildDate: "2024-03-01T12:00:00Z"},
		},
		{
			name: "keeps values set at link time",
			info: Info{Commit: "deadbeef", BuildDate: "yesterday"},
			want: Info{Commit: "deadbeef", BuildDate: "yesterday"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := tt.info
			fillFromBuildSettings(&info, settings)
			assert.Equal(t, tt.want, info)
		})
	}
}
