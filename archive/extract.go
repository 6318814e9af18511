package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks a zipped product into workspace and returns the directory
// that holds its manifest. Entries that would land outside workspace are
// rejected.
func Extract(zipPath, workspace string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	dest := filepath.Clean(workspace)
	productDir := ""
	for _, f := range r.File {
		// macOS archivers add resource forks under __MACOSX.
		if strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}

		fpath := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
			return "", fmt.Errorf("%s: illegal file path in archive", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return "", err
		}
		if err := extractFile(f, fpath); err != nil {
			return "", err
		}
		if filepath.Base(fpath) == ManifestName {
			if productDir != "" {
				return "", fmt.Errorf("archive holds more than one %s", ManifestName)
			}
			productDir = filepath.Dir(fpath)
		}
	}
	if productDir == "" {
		return "", fmt.Errorf("%s in %s: %w", ManifestName, zipPath, ErrMissingField)
	}
	return productDir, nil
}

func extractFile(f *zip.File, fpath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
