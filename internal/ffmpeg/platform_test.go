package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vidcompress/internal/platform"
)

type fakeCache struct {
	n   int
	err error
}

func (c *fakeCache) ClearTemp(context.Context) (int, error) {
	return c.n, c.err
}

func TestNew_Defaults(t *testing.T) {
	p := New()
	assert.Equal(t, "ffmpeg", p.ffmpegPath)
	assert.Equal(t, "ffprobe", p.ffprobePath)
	assert.Equal(t, "16", p.logLevelArg())

	p = New(WithFFmpegPath("/opt/ffmpeg"), WithFFprobePath(""))
	assert.Equal(t, "/opt/ffmpeg", p.ffmpegPath)
	assert.Equal(t, "ffprobe", p.ffprobePath)
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()

	cleared, err := New().ClearCache(ctx)
	require.NoError(t, err)
	assert.False(t, cleared, "no cache configured")

	cleared, err = New(WithCache(&fakeCache{n: 3})).ClearCache(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = New(WithCache(&fakeCache{n: 0})).ClearCache(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)

	_, err = New(WithCache(&fakeCache{err: errors.New("disk")})).ClearCache(ctx)
	assert.Error(t, err)
}

func TestCancel_WithoutEncodeIsNoop(t *testing.T) {
	p := New()
	p.Cancel()

	run := p.beginEncode(context.Background())
	assert.NoError(t, run.ctx.Err(), "a cancel with no encode running must not reach a later one")
	assert.False(t, p.endEncode(run))
}

func TestCancel_MarksActiveEncode(t *testing.T) {
	p := New()
	run := p.beginEncode(context.Background())

	p.Cancel()

	assert.ErrorIs(t, run.ctx.Err(), context.Canceled)
	assert.True(t, p.endEncode(run))
	assert.Nil(t, p.active)
}

func TestEndEncode_LeavesNewerEncodeRegistered(t *testing.T) {
	p := New()
	stale := p.beginEncode(context.Background())
	current := p.beginEncode(context.Background())

	assert.False(t, p.endEncode(stale))
	assert.NoError(t, current.ctx.Err())
	assert.Same(t, current, p.active)

	p.Cancel()
	assert.ErrorIs(t, current.ctx.Err(), context.Canceled)
	assert.True(t, p.endEncode(current))
	assert.False(t, stale.cancelled.Load())
}

// writeScript creates an executable shell script standing in for a binary.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func TestEncode_CancelWhileReadingSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o600))

	p := New(
		WithFFprobePath(writeScript(t, "ffprobe", "exec sleep 5")),
		WithFFmpegPath(filepath.Join(dir, "missing-ffmpeg")),
	)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Encode(context.Background(), platform.PresetEncode{
			Source:         src,
			Output:         filepath.Join(dir, "out.mp4"),
			Quality:        platform.QualityMedium,
			DeleteOriginal: true,
		}, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.active != nil
	}, 2*time.Second, 5*time.Millisecond)
	p.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, platform.ErrCancelled)
	case <-time.After(3 * time.Second):
		t.Fatal("encode did not stop after cancel")
	}
	assert.FileExists(t, src)
	assert.NoFileExists(t, filepath.Join(dir, "out.mp4"))
}

func TestThumbnailArgs(t *testing.T) {
	args := strings.Join(thumbnailArgs(platform.ThumbnailRequest{Path: "v.mp4", Quality: 100, PositionMs: 2500}, "16"), " ")
	assert.Contains(t, args, "-ss 2.500 -i v.mp4")
	assert.Contains(t, args, "-q:v 2")

	args = strings.Join(thumbnailArgs(platform.ThumbnailRequest{Path: "v.mp4", Quality: 1, PositionMs: -1}, "16"), " ")
	assert.NotContains(t, args, "-ss")
	assert.Contains(t, args, "-q:v 31")
}

func TestExtractThumbnail_InvalidQuality(t *testing.T) {
	_, err := New().ExtractThumbnail(context.Background(), platform.ThumbnailRequest{Path: "v.mp4", Quality: 0})
	assert.ErrorIs(t, err, platform.ErrInvalidRequest)
	assert.ErrorIs(t, err, platform.ErrInvocation)
}

func TestLoadPresets(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		ps, err := LoadPresets("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPresets(), ps)
	})

	t.Run("overrides merge", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		content := "low:\n  long_edge: 480\n  short_edge: 270\n  crf: 32\n  audio_bitrate: 48000\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		ps, err := LoadPresets(path)
		require.NoError(t, err)
		assert.Equal(t, Preset{LongEdge: 480, ShortEdge: 270, CRF: 32, AudioBitrate: 48000}, ps[platform.QualityLow])
		assert.Equal(t, DefaultPresets()[platform.QualityMedium], ps[platform.QualityMedium])
	})

	t.Run("unknown quality", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ultra:\n  crf: 10\n"), 0600))

		_, err := LoadPresets(path)
		assert.ErrorIs(t, err, ErrUnknownPreset)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestPresets_LookupFallsBack(t *testing.T) {
	ps := DefaultPresets()
	assert.Equal(t, ps[platform.QualityDefault], ps.Lookup("unknown"))
}
