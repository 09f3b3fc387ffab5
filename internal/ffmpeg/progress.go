package ffmpeg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// progressReader turns ffmpeg `-progress pipe:1` key=value output into
// completed fractions of a known total duration.
type progressReader struct {
	totalUs int64
	last    float64
}

func newProgressReader(totalMs int64) *progressReader {
	return &progressReader{totalUs: totalMs * 1000, last: -1}
}

// parseLine returns the fraction for a line and whether it advanced.
func (pr *progressReader) parseLine(line string) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}

	var fraction float64
	switch key {
	// out_time_ms is in microseconds as well, despite its name.
	case "out_time_us", "out_time_ms":
		if pr.totalUs <= 0 {
			return 0, false
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		fraction = float64(us) / float64(pr.totalUs)
		if fraction > 1 {
			fraction = 1
		}
	case "progress":
		if value != "end" {
			return 0, false
		}
		fraction = 1
	default:
		return 0, false
	}

	if fraction <= pr.last {
		return 0, false
	}
	pr.last = fraction
	return fraction, true
}

// stream reads r until EOF, calling onProgress for every advance.
func (pr *progressReader) stream(r io.Reader, onProgress func(float64)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if f, ok := pr.parseLine(scanner.Text()); ok && onProgress != nil {
			onProgress(f)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ffmpeg progress: %w", err)
	}
	return nil
}
