package convert

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/gridlake-io/gridlake/internal/objectstore"
)

// Codec is the transport compression applied to the raw branch.
type Codec string

// Supported codecs.
const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecSnappy Codec = "snappy"
	CodecLZ4    Codec = "lz4"
)

// RawKeys lists every key the raw copy of a file may have been written
// under, one per codec.
func RawKeys(base string) []string {
	codecs := []Codec{CodecNone, CodecGzip, CodecZstd, CodecSnappy, CodecLZ4}
	keys := make([]string, len(codecs))
	for i, c := range codecs {
		keys[i] = base + c.Extension()
	}
	return keys
}

// FileKeys lists every object a stored file may own: its raw copy under
// each codec suffix and its columnar copy.
func FileKeys(clientID, modelID, table, file string) []string {
	keys := RawKeys(objectstore.RawKey(clientID, modelID, table, file))
	return append(keys, objectstore.DataKey(clientID, modelID, table, file))
}

// ParseCodec converts a config value into a Codec. The empty string is none.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CodecNone, nil
	case CodecNone, CodecGzip, CodecZstd, CodecSnappy, CodecLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("convert: unknown codec %q", s)
	}
}

// Extension is appended to the raw key, including the leading dot.
func (c Codec) Extension() string {
	switch c {
	case CodecGzip:
		return ".gz"
	case CodecZstd:
		return ".zst"
	case CodecSnappy:
		return ".sz"
	case CodecLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ContentEncoding is stored with the raw object; empty for none.
func (c Codec) ContentEncoding() string {
	switch c {
	case CodecNone, "":
		return ""
	default:
		return string(c)
	}
}

// NewWriter wraps w so bytes written are compressed. Closing the returned
// writer flushes the codec but does not close w.
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone, "":
		return nopWriteCloser{w}, nil
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("convert: unsupported codec %q", c)
	}
}

// NewReader wraps r to decompress a raw object written with c.
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone, "":
		return io.NopCloser(r), nil
	case CodecGzip:
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return reader, nil
	case CodecZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case CodecSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("convert: unsupported codec %q", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
