package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodehq/lode/pkg/asset"
)

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain path", in: "video/report", want: "video/report"},
		{name: "collapses slash runs", in: "video//report", want: "video/report"},
		{name: "collapses backslashes", in: `video\\report\clip`, want: "video/report/clip"},
		{name: "strips leading and trailing", in: "/video/report/", want: "video/report"},
		{name: "empty", in: "", wantErr: true},
		{name: "only separators", in: "///", wantErr: true},
		{name: "traversal segment", in: "video/../etc", wantErr: true},
		{name: "traversal at root", in: "../secrets", wantErr: true},
		{name: "dotdot inside name is allowed", in: "video/my..file", want: "video/my..file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, asset.IsKind(err, asset.KindInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "strips directory prefix", in: "dir/sub/report.pdf", want: "report.pdf"},
		{name: "strips windows prefix", in: `c:\tmp\report.pdf`, want: "report.pdf"},
		{name: "percent decoded", in: "my%20file.txt", want: "my_file.txt"},
		{name: "unsafe chars replaced", in: "a b$c.txt", want: "a_b_c.txt"},
		{name: "unicode replaced", in: "日報.txt", want: "__.txt"},
		{name: "empty", in: "", wantErr: true},
		{name: "dot", in: ".", wantErr: true},
		{name: "dotdot", in: "..", wantErr: true},
		{name: "directory only", in: "dir/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFilename(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, asset.IsKind(err, asset.KindInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "report", Stem("report.pdf"))
	assert.Equal(t, "archive.tar", Stem("archive.tar.gz"))
	assert.Equal(t, "noext", Stem("noext"))
	assert.Equal(t, ".hidden", Stem(".hidden"))
}
