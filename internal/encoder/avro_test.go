package encoder

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin/goavro/v2"
)

func readAvro(t *testing.T, data []byte, gzipped bool) []map[string]interface{} {
	t.Helper()
	var r io.Reader = bytes.NewReader(data)
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			t.Fatalf("gzip.NewReader() error = %v", err)
		}
		defer gz.Close()
		r = gz
	}

	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		t.Fatalf("NewOCFReader() error = %v", err)
	}

	var rows []map[string]interface{}
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		rows = append(rows, datum.(map[string]interface{}))
	}
	return rows
}

func TestAvroEncoder_Encode(t *testing.T) {
	tests := []struct {
		name        string
		compression string
		wantExt     string
	}{
		{"gzip", "gzip", ".avro.gz"},
		{"uncompressed", "uncompressed", ".avro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAvroEncoder(tt.compression)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %s, want %s", enc.FileExtension(), tt.wantExt)
			}

			path := filepath.Join(t.TempDir(), "letters"+enc.FileExtension())
			stats, err := enc.Encode(path, testLetters())
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if stats.RecordCount != 2 {
				t.Errorf("RecordCount = %d, want 2", stats.RecordCount)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			rows := readAvro(t, data, tt.compression == "gzip")
			if len(rows) != 2 {
				t.Fatalf("len(rows) = %d, want 2", len(rows))
			}
			if rows[0]["category"] != "segment" || rows[0]["attempts"] != int32(3) {
				t.Errorf("rows[0] = %v", rows[0])
			}
			if string(rows[1]["payload"].([]byte)) != "[garbage]" {
				t.Errorf("rows[1].payload = %v", rows[1]["payload"])
			}
			if rows[0]["archived_at"] != "2025-06-01T12:00:00Z" {
				t.Errorf("rows[0].archived_at = %v", rows[0]["archived_at"])
			}
		})
	}
}

func TestAvroEncoder_EncodeToBytes(t *testing.T) {
	enc, err := NewAvroEncoder("uncompressed")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}

	if _, err := enc.EncodeToBytes(nil); err == nil {
		t.Error("EncodeToBytes() with no letters should fail")
	}

	data, err := enc.EncodeToBytes(testLetters())
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}
	if rows := readAvro(t, data, false); len(rows) != 2 {
		t.Errorf("len(rows) = %d, want 2", len(rows))
	}
}
