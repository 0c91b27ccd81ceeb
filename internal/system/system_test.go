package system

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickEncoder(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		want    string
	}{
		{"nvenc", " V....D h264_nvenc           NVIDIA NVENC H.264 encoder ", "h264_nvenc"},
		{"videotoolbox first", " V....D h264_nvenc  x\n V....D h264_videotoolbox  VideoToolbox H.264 Encoder ", "h264_videotoolbox"},
		{"software", " V....D libx264              libx264 H.264 ", DefaultH264Encoder},
		{"empty", "", DefaultH264Encoder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickEncoder(tt.listing))
		})
	}
}

func TestBestH264EncoderWithoutFFmpeg(t *testing.T) {
	got := BestH264Encoder(context.Background(), "/nonexistent/ffmpeg")
	assert.Equal(t, DefaultH264Encoder, got)
}

func TestFramePoolReusesBySize(t *testing.T) {
	p := NewFramePool()
	r := image.Rect(0, 0, 4, 2)

	img := p.Get(r)
	require.Equal(t, r, img.Rect)
	p.Put(img)

	again := p.Get(r)
	assert.Equal(t, r, again.Rect)

	// Unknown sizes are not pooled.
	p.Put(image.NewRGBA(image.Rect(0, 0, 9, 9)))
	assert.Equal(t, image.Rect(0, 0, 9, 9), p.Get(image.Rect(0, 0, 9, 9)).Rect)
	p.Put(nil)
}

func TestSampleHost(t *testing.T) {
	s, err := SampleHost(context.Background())
	if err != nil {
		t.Skipf("host stats unavailable: %v", err)
	}
	assert.GreaterOrEqual(t, s.MemPercent, 0.0)
	assert.LessOrEqual(t, s.MemPercent, 100.0)
}
