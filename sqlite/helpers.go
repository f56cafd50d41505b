package sqlite

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"
)

// timeLayout keeps sub-second precision so short TTLs behave.
const timeLayout = time.RFC3339Nano

// formatTime formats a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp.
// Returns an error if parsing fails with a descriptive message including the field name.
func parseTime(value, fieldName string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return t, nil
}

// compress encodes a value as a brotli stream. The empty string still
// produces a non-empty stream, which keeps negative entries distinct from
// metadata-only rows (NULL).
func compress(value string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, quality)
	if _, err := io.WriteString(w, value); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompress decodes a value written by compress.
func decompress(blob []byte) (string, error) {
	b, err := io.ReadAll(brotli.NewReader(bytes.NewReader(blob)))
	if err != nil {
		return "", fmt.Errorf("failed to decompress value: %w", err)
	}
	return string(b), nil
}
