package embedding

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	info, err := Validate(encodePNG(createTestImage(40, 30, color.White)))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if info.Format != "png" || info.Width != 40 || info.Height != 30 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestValidate_NotAnImage(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": encodePNG(createTestImage(10, 10, color.White))[:12],
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(data)
			if !errors.Is(err, ErrUnidentifiedImage) {
				t.Errorf("expected ErrUnidentifiedImage, got %v", err)
			}
		})
	}
}

func TestPrepareImage_SmallImageUnchanged(t *testing.T) {
	data := encodePNG(createTestImage(100, 100, color.White))

	out, err := PrepareImage(data, 200)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected small image to be passed through unchanged")
	}
}

func TestPrepareImage_Downscales(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"landscape", 2000, 1000, 500, 250},
		{"portrait", 1000, 2000, 250, 500},
		{"square", 800, 800, 500, 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := encodeJPEG(createTestImage(tc.width, tc.height, color.Gray{Y: 128}))

			out, err := PrepareImage(data, 500)
			if err != nil {
				t.Fatalf("PrepareImage failed: %v", err)
			}

			img, format, err := image.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("failed to decode resized image: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("expected jpeg, got %s", format)
			}
			if img.Bounds().Dx() != tc.wantW || img.Bounds().Dy() != tc.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tc.wantW, tc.wantH, img.Bounds().Dx(), img.Bounds().Dy())
			}
		})
	}
}

func TestPrepareImage_Invalid(t *testing.T) {
	if _, err := PrepareImage([]byte("nope"), 500); !errors.Is(err, ErrUnidentifiedImage) {
		t.Errorf("expected ErrUnidentifiedImage, got %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", encodeJPEG(createTestImage(4, 4, color.White)), "image/jpeg"},
		{"png", encodePNG(createTestImage(4, 4, color.White)), "image/png"},
		{"gif", []byte("GIF89a\x00\x00\x00\x00"), "image/gif"},
		{"bmp", []byte("BM\x00\x00\x00\x00\x00\x00"), "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectMIMEType(tc.data); got != tc.want {
				t.Errorf("DetectMIMEType() = %q, want %q", got, tc.want)
			}
		})
	}
}
