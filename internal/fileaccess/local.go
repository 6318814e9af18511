package fileaccess

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const jsonIndent = "    "

// FSAccess implements FileAccess on the local file system.
type FSAccess struct{}

func (a *FSAccess) ListObjects(rootPath string, prefix string) ([]string, error) {
	result := []string{}

	rootOnly := path.Join(rootPath)
	fullPath := a.filePath(rootPath, prefix)

	err := filepath.Walk(fullPath, func(found string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(found)
		if strings.HasPrefix(rel, rootOnly+"/") {
			rel = rel[len(rootOnly)+1:]
		}
		result = append(result, rel)
		return nil
	})
	return result, err
}

func (a *FSAccess) ReadObject(rootPath string, p string) ([]byte, error) {
	return os.ReadFile(a.filePath(rootPath, p))
}

// WriteObject creates intermediate directories, then writes or truncates
// the file.
func (a *FSAccess) WriteObject(rootPath string, p string, data []byte) error {
	fullPath := a.filePath(rootPath, p)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, data, 0o644)
}

func (a *FSAccess) ReadJSON(rootPath string, p string, itemsPtr interface{}, emptyIfNotFound bool) error {
	data, err := a.ReadObject(rootPath, p)
	if err != nil {
		if emptyIfNotFound && a.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, itemsPtr)
}

func (a *FSAccess) WriteJSON(rootPath string, p string, itemsPtr interface{}) error {
	data, err := json.MarshalIndent(itemsPtr, "", jsonIndent)
	if err != nil {
		return err
	}
	fullPath := a.filePath(rootPath, p)
	return os.WriteFile(fullPath, data, 0o644)
}

func (a *FSAccess) DeleteObject(rootPath string, p string) error {
	return os.Remove(a.filePath(rootPath, p))
}

func (a *FSAccess) IsNotFoundError(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (a *FSAccess) filePath(rootPath string, p string) string {
	return path.Join(rootPath, p)
}
