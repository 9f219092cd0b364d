package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/lookalike/internal/embedding"
	"github.com/kozaktomas/lookalike/internal/index"
	"github.com/kozaktomas/lookalike/internal/match"
	"github.com/kozaktomas/lookalike/internal/metadata"
)

// fakeMatcher returns a fixed result or error and records its arguments.
type fakeMatcher struct {
	matches      []match.Match
	err          error
	gotVector    []float32
	gotK         int
	gotThreshold int
	calls        int
}

func (f *fakeMatcher) FindMatches(vector []float32, k int, threshold int) ([]match.Match, error) {
	f.calls++
	f.gotVector, f.gotK, f.gotThreshold = vector, k, threshold
	return f.matches, f.err
}

// fakeEmbedder returns a fixed face response or error.
type fakeEmbedder struct {
	resp  *embedding.FaceResponse
	err   error
	calls int
}

func (f *fakeEmbedder) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*embedding.FaceResponse, error) {
	f.calls++
	return f.resp, f.err
}

func oneFace(vector ...float32) *embedding.FaceResponse {
	return &embedding.FaceResponse{
		FacesCount: 1,
		Faces:      []embedding.FaceDetection{{Dim: len(vector), Embedding: vector}},
	}
}

// testStore builds metadata for ids 0..2.
func testStore() *metadata.Store {
	return metadata.NewStore(map[index.ID]metadata.Record{
		0: {FaceLocation: [4]int{10, 60, 50, 20}, FullPhotoFilename: "ana.jpg", Data: map[string]any{"name": "Ana Ivanović"}},
		1: {FaceLocation: [4]int{5, 40, 35, 10}, FullPhotoFilename: "ben.jpg", Data: map[string]any{"name": "Ben Stiller"}},
		2: {FaceLocation: [4]int{0, 30, 30, 0}, FullPhotoFilename: "cate.jpg", Data: map[string]any{"name": "Cate Blanchett"}},
	})
}

// testPipeline builds a real pipeline over a small euclidean index.
func testPipeline(t *testing.T) *match.Pipeline {
	t.Helper()
	vectors := [][]float32{{0, 0}, {0.1, 0}, {1, 1}}

	var buf bytes.Buffer
	if err := index.WriteFlat(&buf, index.MetricEuclidean, 2, vectors, index.CompressionNone); err != nil {
		t.Fatalf("WriteFlat failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "faces.index")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}

	idx, err := index.Open(path, index.MetricEuclidean, 2)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return match.NewPipeline(idx, testStore())
}

func readyState(m Matcher) *State {
	state := NewState()
	state.SetReady(&Backend{Matcher: m, Searcher: testStore(), Faces: 3})
	return state
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := range 16 {
		for y := range 16 {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// uploadRequest creates a multipart POST with data in the "file" field.
func uploadRequest(t *testing.T, target string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "face.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
