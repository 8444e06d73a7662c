// Package photo prepares vehicle pictures for storage as data URIs.
package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

const (
	MaxWidth    = 800
	MaxHeight   = 800
	JPEGQuality = 90
	// MaxUploadBytes bounds the raw upload accepted by Resize.
	MaxUploadBytes = 10 << 20
)

var (
	ErrEmptyImage    = errors.New("empty image")
	ErrImageTooLarge = errors.New("image too large")
	ErrUnsupported   = errors.New("unsupported image format")
)

// Fit returns the largest size within maxW x maxH that keeps the aspect
// ratio of w x h. Images that already fit are not enlarged.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if h > maxH {
		w = w * maxH / h
		h = maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Resize decodes a PNG or JPEG, scales it to fit 800x800 and returns a data
// URI. PNG input keeps its alpha channel and stays PNG; everything else is
// re-encoded as JPEG.
func Resize(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) > MaxUploadBytes {
		return "", ErrImageTooLarge
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), MaxWidth, MaxHeight)
	asPNG := format == "png" || strings.EqualFold(contentType, "image/png")

	var buf bytes.Buffer
	if asPNG {
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		if err := png.Encode(&buf, dst); err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
		return dataURI("image/png", buf.Bytes()), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha, so flatten onto white
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return dataURI("image/jpeg", buf.Bytes()), nil
}

func dataURI(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

// Decode reverses a data URI produced by Resize.
func Decode(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data uri", ErrUnsupported)
	}
	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil, fmt.Errorf("%w: not base64", ErrUnsupported)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	return mime, data, nil
}
