package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultFFmpeg is the binary used for containers with no pure-Go decoder.
const DefaultFFmpeg = "ffmpeg"

// transcode pipes raw through ffmpeg and returns mono PCM16 at rate.
func transcode(ctx context.Context, ffmpeg string, raw []byte, container Container, rate int) ([]int16, error) {
	bin, err := exec.LookPath(ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s needs ffmpeg: %v", ErrUnsupported, container, err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0", // read from stdin
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"pipe:1", // write to stdout
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg %s: %w", ErrDecode, container, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: ffmpeg %s: %s", ErrDecode, container, firstLine(stderr.String()))
		}
		return nil, fmt.Errorf("%w: running ffmpeg: %v", ErrDecode, err)
	}
	if stdout.Len()%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: ffmpeg returned odd-length pcm", ErrDecode)
	}
	return bytesToSamples(stdout.Bytes()), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "exited with error"
	}
	return s
}
