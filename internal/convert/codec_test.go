package convert

import (
	"bytes"
	"io"
	"testing"
)

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{in: "", want: CodecNone},
		{in: "none", want: CodecNone},
		{in: "GZIP", want: CodecGzip},
		{in: " zstd ", want: CodecZstd},
		{in: "snappy", want: CodecSnappy},
		{in: "lz4", want: CodecLZ4},
		{in: "brotli", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCodec(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCodec(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseCodec(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("id,name\n1,alpha\n"), 500)

	for _, c := range []Codec{CodecNone, CodecGzip, CodecZstd, CodecSnappy, CodecLZ4} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := c.NewWriter(&buf)
			if err != nil {
				t.Fatalf("NewWriter: %v", err)
			}
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if c != CodecNone && buf.Len() >= len(payload) {
				t.Errorf("%s did not compress: %d >= %d", c, buf.Len(), len(payload))
			}

			r, err := c.NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestRawKeys(t *testing.T) {
	got := RawKeys("client/c1/m1/input/sales/jan.csv")
	want := []string{
		"client/c1/m1/input/sales/jan.csv",
		"client/c1/m1/input/sales/jan.csv.gz",
		"client/c1/m1/input/sales/jan.csv.zst",
		"client/c1/m1/input/sales/jan.csv.sz",
		"client/c1/m1/input/sales/jan.csv.lz4",
	}
	if len(got) != len(want) {
		t.Fatalf("RawKeys = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RawKeys[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileKeys(t *testing.T) {
	got := FileKeys("c1", "m1", "sales", "jan.csv")
	if len(got) != 6 {
		t.Fatalf("FileKeys = %v", got)
	}
	if got[0] != "client/c1/m1/input/sales/jan.csv" {
		t.Errorf("first key = %q", got[0])
	}
	if got[5] != "client/c1/m1/data/sales/jan.parquet" {
		t.Errorf("last key = %q", got[5])
	}
}
