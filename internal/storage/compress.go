package storage

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// deflateLevel matches the original service's zlib level-6 default: a
// balance between compression ratio and CPU cost for HTML/text bodies.
const deflateLevel = 6

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := flate.NewWriter(&buf, deflateLevel)
	if err != nil {
		return nil, fmt.Errorf("new flate writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("flate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("flate read: %w", err)
	}
	return body, nil
}
