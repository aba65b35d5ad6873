package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaFileType_String(t *testing.T) {
	assert.Equal(t, "image", MediaFileTypeImage.String())
	assert.Equal(t, "video", MediaFileTypeVideo.String())
}

func TestMediaFileType_IsValid(t *testing.T) {
	assert.True(t, MediaFileTypeImage.IsValid())
	assert.True(t, MediaFileTypeVideo.IsValid())

	invalidType := MediaFileType("invalid")
	assert.False(t, invalidType.IsValid())
}

func TestDetectFileType(t *testing.T) {
	imageTypes := []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	for _, mimeType := range imageTypes {
		assert.Equal(t, MediaFileTypeImage, DetectFileType(mimeType), "Failed for MIME type: %s", mimeType)
	}

	// Audio maps to video so the host runs it through transcoding.
	videoTypes := []string{"video/mp4", "video/webm", "audio/ogg", "audio/mpeg"}
	for _, mimeType := range videoTypes {
		assert.Equal(t, MediaFileTypeVideo, DetectFileType(mimeType), "Failed for MIME type: %s", mimeType)
	}

	assert.Equal(t, MediaFileTypeImage, DetectFileType("IMAGE/JPEG"), "case insensitive")
	assert.Equal(t, MediaFileTypeVideo, DetectFileType("Video/MP4"), "case insensitive")
	assert.Equal(t, MediaFileTypeImage, DetectFileType("application/pdf"), "unknown falls back to image")
}
