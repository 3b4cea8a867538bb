package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
)

// ErrUnavailable is returned by a Codec that cannot perform the requested
// transform (unknown encoding, decode failure). The cache absorbs it into
// the serve-original fallback; it never reaches a client.
var ErrUnavailable = errors.New("transform unavailable")

// Codec transforms image bytes. Implementations are pure functions over
// their input.
type Codec interface {
	Transform(ctx context.Context, src []byte, t Transform) ([]byte, error)
}

// ImagingCodec is the default Codec, backed by the imaging library.
// Resizing fits the image within the requested box preserving aspect
// ratio; a single dimension scales proportionally.
type ImagingCodec struct{}

// NewImagingCodec creates the default codec.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// Transform implements Codec.
func (c *ImagingCodec) Transform(ctx context.Context, src []byte, t Transform) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %v", ErrUnavailable, err)
	}

	switch {
	case t.Width > 0 && t.Height > 0:
		img = imaging.Fit(img, t.Width, t.Height, imaging.Lanczos)
	case t.Width > 0:
		img = imaging.Resize(img, t.Width, 0, imaging.Lanczos)
	case t.Height > 0:
		img = imaging.Resize(img, 0, t.Height, imaging.Lanczos)
	}

	format, err := targetFormat(src, t)
	if err != nil {
		return nil, err
	}

	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		quality := t.Quality
		if quality == 0 {
			quality = 85
		}
		opts = append(opts, imaging.JPEGQuality(quality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("%w: encoding image: %v", ErrUnavailable, err)
	}
	return buf.Bytes(), nil
}

// targetFormat picks the output encoding: the requested format, else the
// source's detected format.
func targetFormat(src []byte, t Transform) (imaging.Format, error) {
	f := t.Format
	if f == "" {
		switch http.DetectContentType(src) {
		case "image/jpeg":
			f = FormatJPEG
		case "image/png":
			f = FormatPNG
		case "image/gif":
			f = FormatGIF
		default:
			return 0, fmt.Errorf("%w: unsupported source format", ErrUnavailable)
		}
	}
	switch f {
	case FormatJPEG:
		return imaging.JPEG, nil
	case FormatPNG:
		return imaging.PNG, nil
	case FormatGIF:
		return imaging.GIF, nil
	}
	return 0, fmt.Errorf("%w: unsupported format %q", ErrUnavailable, f)
}
