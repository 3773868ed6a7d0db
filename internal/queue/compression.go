package queue

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const compressedPrefix = "COMPRESSED:gzip:"

// Compress rewrites a description as "COMPRESSED:gzip:<base64>" when it
// exceeds threshold bytes; shorter descriptions pass through unchanged.
func Compress(description string, threshold int) (string, error) {
	if len(description) <= threshold {
		return description, nil
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(description)); err != nil {
		return "", fmt.Errorf("compressing description: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("closing gzip writer: %w", err)
	}
	return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress transparently reverses Compress. A description with no
// COMPRESSED: prefix is returned unchanged.
func Decompress(description string) (string, error) {
	if !strings.HasPrefix(description, compressedPrefix) {
		return description, nil
	}

	encoded := strings.TrimPrefix(description, compressedPrefix)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding base64 payload: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("opening gzip reader: %w", err)
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return "", fmt.Errorf("decompressing description: %w", err)
	}
	return string(out), nil
}
