// Package media provides the media metadata model and the probe that
// normalises what the native metadata source reports.
package media

// Info describes a media file as reported by the platform.
// It is a value type: produced once by a probe or a finished compression
// and never mutated afterwards.
type Info struct {
	// Path is the location of the media file.
	Path string `json:"path"`
	// Title is the container title tag, if any.
	Title string `json:"title"`
	// Author is the container author/artist tag, if any.
	Author string `json:"author"`
	// Width is the frame width in pixels (0 when unknown).
	Width int `json:"width"`
	// Height is the frame height in pixels (0 when unknown).
	Height int `json:"height"`
	// DurationMs is the duration in milliseconds.
	DurationMs int64 `json:"duration"`
	// FileSize is the size of the file in bytes.
	FileSize int64 `json:"filesize"`
	// Bitrate is the overall bitrate in bits per second.
	Bitrate int64 `json:"bitrate"`
	// Orientation is the display rotation in degrees.
	Orientation int `json:"orientation"`
}

// HasDimensions reports whether both width and height are known.
func (i Info) HasDimensions() bool {
	return i.Width > 0 && i.Height > 0
}

// IsQuarterTurn reports whether the orientation rotates the frame by an odd
// number of quarter turns, i.e. portrait and landscape are exchanged.
func (i Info) IsQuarterTurn() bool {
	return (i.Orientation/90)%2 != 0
}

// Upright returns a copy of the info with width and height expressed in
// display orientation.
func (i Info) Upright() Info {
	if i.IsQuarterTurn() {
		i.Width, i.Height = i.Height, i.Width
	}
	return i
}
