package vfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Filter selects the files included in an export. It receives the relative
// path and returns true to include the file.
type Filter func(rel string) bool

// encodeZip writes files into a zip archive in lexical path order.
func encodeZip(files map[string][]byte, filter Filter) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, rel := range slices.Sorted(maps.Keys(files)) {
		if filter != nil && !filter(rel) {
			continue
		}

		header := &zip.FileHeader{Name: rel, Method: zip.Deflate}
		header.SetMode(0o644)

		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("add %q to zip: %w", rel, err)
		}

		_, err = w.Write(files[rel])
		if err != nil {
			return nil, fmt.Errorf("write %q to zip: %w", rel, err)
		}
	}

	err := zw.Close()
	if err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeZip reads all file entries of a zip archive. Entry names are cleaned;
// names escaping the root are rejected with [ErrBreakout].
func decodeZip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	files := make(map[string][]byte, len(zr.File))

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			continue
		}

		rel := CleanPath(f.Name)
		if rel == "" || IsBreakout(rel) {
			return nil, pathErr("unzip", f.Name, ErrBreakout)
		}

		content, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %q from zip: %w", f.Name, err)
		}

		files[rel] = content
	}

	return files, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}

	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
