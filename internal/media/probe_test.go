package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockSource implements MetadataSource for testing.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) ProbeMedia(ctx context.Context, path string) (Info, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(Info), args.Error(1)
}

func writeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0600))
	return path
}

func TestProbe_SwapsDimensionsOnQuarterTurn(t *testing.T) {
	tests := []struct {
		name        string
		orientation int
		wantW       int
		wantH       int
	}{
		{"no rotation", 0, 1920, 1080},
		{"rotate 90", 90, 1080, 1920},
		{"rotate 180", 180, 1920, 1080},
		{"rotate 270", 270, 1080, 1920},
		{"rotate -90", -90, 1080, 1920},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t)
			src := &mockSource{}
			src.On("ProbeMedia", mock.Anything, path).Return(Info{
				Width:       1920,
				Height:      1080,
				Orientation: tt.orientation,
			}, nil)

			info, err := NewProber(src, nil).Probe(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, info.Width)
			assert.Equal(t, tt.wantH, info.Height)
			assert.Equal(t, tt.orientation, info.Orientation)
			assert.Equal(t, path, info.Path)
			src.AssertExpectations(t)
		})
	}
}

func TestProbe_NotFound(t *testing.T) {
	src := &mockSource{}
	missing := filepath.Join(t.TempDir(), "missing.mp4")

	_, err := NewProber(src, nil).Probe(context.Background(), missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	src.AssertNotCalled(t, "ProbeMedia", mock.Anything, mock.Anything)
}

func TestProbe_EmptyPath(t *testing.T) {
	_, err := NewProber(&mockSource{}, nil).Probe(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestProbe_CorruptMedia(t *testing.T) {
	path := writeFile(t)
	src := &mockSource{}
	src.On("ProbeMedia", mock.Anything, path).Return(Info{}, ErrCorruptMedia)

	_, err := NewProber(src, nil).Probe(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptMedia)
}

func TestProbe_PropagatesSourceError(t *testing.T) {
	path := writeFile(t)
	boom := errors.New("boom")
	src := &mockSource{}
	src.On("ProbeMedia", mock.Anything, path).Return(Info{}, boom)

	_, err := NewProber(src, nil).Probe(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCorruptMedia)
}

func TestInfo_HasDimensions(t *testing.T) {
	assert.True(t, Info{Width: 1, Height: 1}.HasDimensions())
	assert.False(t, Info{Width: 1}.HasDimensions())
	assert.False(t, Info{}.HasDimensions())
}
