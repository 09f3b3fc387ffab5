package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maauso/vidcompress/internal/media"
)

// probeOutput is the subset of `ffprobe -print_format json` used here.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  *probeFormat  `json:"format"`
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Tags         map[string]string `json:"tags"`
	SideDataList []probeSideData   `json:"side_data_list"`
}

type probeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

type probeFormat struct {
	Filename string            `json:"filename"`
	Duration string            `json:"duration"`
	Size     string            `json:"size"`
	BitRate  string            `json:"bit_rate"`
	Tags     map[string]string `json:"tags"`
}

// ProbeMedia implements platform.Platform using ffprobe.
// Width and height are returned as stored; Orientation carries the rotation.
func (p *Platform) ProbeMedia(ctx context.Context, path string) (media.Info, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	out, err := run(ctx, p.ffprobePath, args)
	if err != nil {
		var ffErr *Error
		if errors.As(err, &ffErr) {
			return media.Info{}, fmt.Errorf("%w: %w", media.ErrCorruptMedia, err)
		}
		return media.Info{}, err
	}

	return parseProbeOutput(path, out)
}

// parseProbeOutput converts ffprobe JSON into media.Info.
func parseProbeOutput(path string, data []byte) (media.Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return media.Info{}, fmt.Errorf("%w: decode ffprobe output: %w", media.ErrCorruptMedia, err)
	}
	if out.Format == nil {
		return media.Info{}, fmt.Errorf("%w: no format section", media.ErrCorruptMedia)
	}

	info := media.Info{
		Path:     path,
		Title:    tag(out.Format.Tags, "title"),
		Author:   tag(out.Format.Tags, "artist", "author"),
		FileSize: parseInt(out.Format.Size),
		Bitrate:  parseInt(out.Format.BitRate),
	}

	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		info.DurationMs = int64(math.Round(d * 1000))
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.Orientation = streamRotation(s)
		break
	}

	return info, nil
}

// streamRotation returns the clockwise display rotation in degrees (0..359).
// The legacy rotate tag wins over the display matrix, which ffprobe reports
// counter-clockwise.
func streamRotation(s probeStream) int {
	if v := tag(s.Tags, "rotate"); v != "" {
		if deg, err := strconv.Atoi(v); err == nil {
			return normalizeDegrees(deg)
		}
	}
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			return normalizeDegrees(-int(math.Round(sd.Rotation)))
		}
	}
	return 0
}

func normalizeDegrees(deg int) int {
	return ((deg % 360) + 360) % 360
}

// tag looks up the first present key, ignoring case.
func tag(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		for k, v := range tags {
			if strings.EqualFold(k, key) && v != "" {
				return v
			}
		}
	}
	return ""
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
