package geoserver

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sidecarExtensions are the component files that may accompany a shapefile.
var sidecarExtensions = []string{".shp", ".shx", ".dbf", ".prj", ".cpg", ".qpj"}

// buildShapefileArchive zips the shapefile and its sidecar files into an
// in-memory archive suitable for GeoServer's file.shp upload endpoint.
// Entries are stored under the bare base name so the server sees a clean
// layer name.
func buildShapefileArchive(shpPath string) ([]byte, error) {
	baseRoot := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	baseName := filepath.Base(baseRoot)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	found := 0
	for _, ext := range sidecarExtensions {
		src := baseRoot + ext
		f, err := os.Open(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open %q: %w", src, err)
		}

		entry, err := zw.Create(baseName + ext)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create archive entry for %q: %w", src, err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return nil, fmt.Errorf("archive %q: %w", src, err)
		}
		f.Close()
		found++
	}

	if found == 0 {
		return nil, fmt.Errorf("no shapefile components found for %q", shpPath)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
