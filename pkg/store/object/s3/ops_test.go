package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewritePublicURL(t *testing.T) {
	raw := "http://minio.internal:9000/lode/main/video/clip/clip.mp4?versionId=abc&X-Amz-Signature=sig"

	t.Run("rewrites scheme and host only", func(t *testing.T) {
		got, err := rewritePublicURL(raw, "https://assets.example.com")
		require.NoError(t, err)
		assert.Equal(t,
			"https://assets.example.com/lode/main/video/clip/clip.mp4?versionId=abc&X-Amz-Signature=sig",
			got)
	})

	t.Run("empty public url passes through", func(t *testing.T) {
		got, err := rewritePublicURL(raw, "")
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := rewritePublicURL(raw, "https://assets.example.com")
		require.NoError(t, err)
		b, err := rewritePublicURL(raw, "https://assets.example.com")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestMetadataChecksum(t *testing.T) {
	assert.Equal(t, "abc", metadataChecksum(map[string]string{"checksum-sha256": "abc"}))
	assert.Equal(t, "abc", metadataChecksum(map[string]string{"Checksum-Sha256": "abc"}))
	assert.Empty(t, metadataChecksum(map[string]string{"other": "x"}))
	assert.Empty(t, metadataChecksum(nil))
}

func TestObjectKey(t *testing.T) {
	s := &Store{bucket: "lode"}
	assert.Equal(t, "main/video/clip/clip.mp4", s.objectKey("main", "video/clip/clip.mp4"))
	assert.Equal(t, "main/video/clip/clip.mp4", s.objectKey("main", "/video/clip/clip.mp4"))
}
