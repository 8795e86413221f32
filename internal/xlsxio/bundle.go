package xlsxio

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Bundle zips the named blobs into a single archive. Entries are written in
// the order given so the archive bytes are reproducible.
func Bundle(names []string, blobs map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		blob, ok := blobs[name]
		if !ok {
			return nil, fmt.Errorf("bundle entry %q has no content", name)
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %q: %w", name, err)
		}
		if _, err := w.Write(blob); err != nil {
			return nil, fmt.Errorf("write archive entry %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
