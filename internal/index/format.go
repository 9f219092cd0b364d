package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Flat index file layout (little endian):
//
//	magic       [4]byte "LKIX"
//	version     uint16
//	metric      uint8
//	compression uint8
//	dim         uint32
//	count       uint32
//	payload     count*dim float32, raw or as a single zstd/lz4 frame
const (
	flatMagic      = "LKIX"
	flatVersion    = uint16(1)
	flatHeaderSize = 16

	// maxFlatElements bounds allocations driven by a (possibly corrupt) header.
	maxFlatElements = 1 << 31
)

// Compression selects how the flat payload is stored.
type Compression uint8

const (
	// CompressionNone stores raw float32 values.
	CompressionNone Compression = 0
	// CompressionZSTD stores the payload as one zstd frame.
	CompressionZSTD Compression = 1
	// CompressionLZ4 stores the payload as one lz4 frame.
	CompressionLZ4 Compression = 2
)

// ParseCompression maps a name ("none", "zstd", "lz4") to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

type flatHeader struct {
	metric      Metric
	compression Compression
	dim         uint32
	count       uint32
}

// WriteFlat encodes vectors in the flat index format. Vector i gets ID i.
// It exists for fixtures and tooling; the serving path only reads.
func WriteFlat(w io.Writer, metric Metric, dim int, vectors [][]float32, c Compression) error {
	if !metric.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMetric, metric)
	}
	if dim < 1 {
		return ErrInvalidDimension
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d: %w", i, &DimensionMismatchError{Expected: dim, Actual: len(v)})
		}
	}

	hdr := make([]byte, flatHeaderSize)
	copy(hdr, flatMagic)
	binary.LittleEndian.PutUint16(hdr[4:], flatVersion)
	hdr[6] = byte(metric)
	hdr[7] = byte(c)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(dim))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(vectors)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	payload := make([]byte, len(vectors)*dim*4)
	off := 0
	for _, v := range vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(payload[off:], math.Float32bits(x))
			off += 4
		}
	}

	switch c {
	case CompressionNone:
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing payload: %w", err)
		}
		return nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		if _, err := enc.Write(payload); err != nil {
			_ = enc.Close()
			return fmt.Errorf("writing zstd payload: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("closing zstd encoder: %w", err)
		}
		return nil
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("writing lz4 payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("closing lz4 writer: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown compression %d", c)
	}
}

// readFlat decodes a flat index stream of size bytes; a negative size means unknown.
// Every failure is reported as ErrIndexCorrupt.
func readFlat(r io.Reader, size int64) (flatHeader, []float32, error) {
	var hdr flatHeader

	raw := make([]byte, flatHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return hdr, nil, corruptf("reading header: %v", err)
	}
	if string(raw[:4]) != flatMagic {
		return hdr, nil, corruptf("bad magic %q", raw[:4])
	}
	if v := binary.LittleEndian.Uint16(raw[4:]); v != flatVersion {
		return hdr, nil, corruptf("unsupported version %d", v)
	}
	hdr.metric = Metric(raw[6])
	hdr.compression = Compression(raw[7])
	hdr.dim = binary.LittleEndian.Uint32(raw[8:])
	hdr.count = binary.LittleEndian.Uint32(raw[12:])

	if !hdr.metric.Valid() {
		return hdr, nil, corruptf("unknown metric id %d", raw[6])
	}
	if hdr.dim == 0 {
		return hdr, nil, corruptf("zero dimension")
	}
	elements := uint64(hdr.dim) * uint64(hdr.count)
	if elements > maxFlatElements {
		return hdr, nil, corruptf("payload of %d values exceeds limit", elements)
	}

	want := elements * 4
	var payload io.Reader
	switch hdr.compression {
	case CompressionNone:
		if size >= 0 && uint64(size)-flatHeaderSize != want {
			return hdr, nil, corruptf("header declares %d payload bytes, file holds %d", want, uint64(size)-flatHeaderSize)
		}
		payload = r
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return hdr, nil, corruptf("opening zstd payload: %v", err)
		}
		defer dec.Close()
		payload = dec
	case CompressionLZ4:
		payload = lz4.NewReader(r)
	default:
		return hdr, nil, corruptf("unknown compression id %d", raw[7])
	}

	var buf []byte
	var err error
	if hdr.compression == CompressionNone {
		buf = make([]byte, want)
		_, err = io.ReadFull(payload, buf)
	} else {
		// Compressed payloads grow the buffer only as data actually decodes.
		buf, err = io.ReadAll(io.LimitReader(payload, int64(want)))
	}
	if err != nil {
		return hdr, nil, corruptf("reading payload: %v", err)
	}
	if uint64(len(buf)) != want {
		return hdr, nil, corruptf("reading payload: got %d of %d bytes", len(buf), want)
	}
	if err := expectEOF(payload); err != nil {
		return hdr, nil, err
	}

	data := make([]float32, elements)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return hdr, data, nil
}

// expectEOF rejects trailing bytes after the declared payload.
func expectEOF(r io.Reader) error {
	var one [1]byte
	n, err := r.Read(one[:])
	if n > 0 {
		return corruptf("trailing data after payload")
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return corruptf("reading payload trailer: %v", err)
	}
	if err == nil {
		// A reader may return (0, nil); ask once more before giving up.
		if _, err := bufio.NewReader(r).ReadByte(); !errors.Is(err, io.EOF) {
			return corruptf("trailing data after payload")
		}
	}
	return nil
}
