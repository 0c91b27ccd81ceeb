package system

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// DefaultH264Encoder is the software fallback every ffmpeg build ships.
const DefaultH264Encoder = "libx264"

// InitResourceLimits raises the open file limit. Image loads and audio
// decodes each hold descriptors while in flight.
func InitResourceLimits(log zerolog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn().Err(err).Msg("cannot read open file limit")
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn().Err(err).Msg("cannot raise open file limit")
		return
	}
	log.Debug().Uint64("limit", uint64(rLimit.Cur)).Msg("open file limit raised")
}

// BestH264Encoder picks a hardware H.264 encoder when the local ffmpeg has
// one. Priority: VideoToolbox (macOS), NVENC (NVIDIA), then libx264.
func BestH264Encoder(ctx context.Context, ffmpegPath string) string {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return DefaultH264Encoder
	}
	return pickEncoder(string(out))
}

func pickEncoder(listing string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, " "+name+" ") {
			return name
		}
	}
	return DefaultH264Encoder
}
