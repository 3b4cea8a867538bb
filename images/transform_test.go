package images

import (
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTransform(t *testing.T) {
	q := url.Values{"w": {"640"}, "h": {"480"}, "q": {"85"}}
	tr := ParseTransform(q)
	require.Equal(t, Transform{Width: 640, Height: 480, Quality: 85}, tr)
}

func TestParseTransformInvalidValuesTreatedAsAbsent(t *testing.T) {
	q := url.Values{"w": {"banana"}, "h": {"-10"}, "q": {"0"}}
	tr := ParseTransform(q)
	require.True(t, tr.IsZero())
}

func TestParseTransformClamping(t *testing.T) {
	q := url.Values{"w": {"99999"}, "h": {"5000"}, "q": {"250"}}
	tr := ParseTransform(q)
	require.Equal(t, MaxDimension, tr.Width)
	require.Equal(t, MaxDimension, tr.Height)
	require.Equal(t, 100, tr.Quality)
}

func TestParseTransformFormats(t *testing.T) {
	require.Equal(t, FormatJPEG, ParseTransform(url.Values{"format": {"jpeg"}}).Format)
	require.Equal(t, FormatJPEG, ParseTransform(url.Values{"format": {"jpg"}}).Format)
	require.Equal(t, FormatPNG, ParseTransform(url.Values{"format": {"PNG"}}).Format)
	require.Equal(t, Format(""), ParseTransform(url.Values{"format": {"svg"}}).Format)
}

func TestTransformEncode(t *testing.T) {
	require.Equal(t, "w640_h480_q85", Transform{Width: 640, Height: 480, Quality: 85}.encode())
	require.Equal(t, "w640", Transform{Width: 640}.encode())
	require.Equal(t, "h480_q90", Transform{Height: 480, Quality: 90}.encode())
}

func TestDerivativePathDeterministic(t *testing.T) {
	tr := Transform{Width: 320, Quality: 80}

	p1 := DerivativePath("/cache", "/content/images/photo.png", tr)
	p2 := DerivativePath("/cache", "/content/images/photo.png", tr)
	require.Equal(t, p1, p2)
	require.Equal(t, filepath.Join("/cache", "photo.w320_q80.png"), p1)
}

func TestDerivativePathFormatChangesExtension(t *testing.T) {
	tr := Transform{Width: 320, Format: FormatJPEG}
	p := DerivativePath("/cache", "/content/photo.png", tr)
	require.Equal(t, filepath.Join("/cache", "photo.w320.jpg"), p)
}

func TestContentType(t *testing.T) {
	require.Equal(t, "image/jpeg", ContentType("a.jpg"))
	require.Equal(t, "image/jpeg", ContentType("a.JPEG"))
	require.Equal(t, "image/png", ContentType("a.png"))
	require.Equal(t, "image/gif", ContentType("a.gif"))
	require.Equal(t, "application/octet-stream", ContentType("a.webp"))
}
