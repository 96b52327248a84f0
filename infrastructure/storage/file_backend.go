package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".json"

type fileBackend struct {
	dir string
}

// NewFileStore keeps one <name>.json file per document under dir.
func NewFileStore(dir string, enc Encrypter) (*DocumentStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return newDocumentStore(&fileBackend{dir: dir}, enc), nil
}

func (b *fileBackend) path(name string) string {
	return filepath.Join(b.dir, name+fileExt)
}

func (b *fileBackend) load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNotExist
	}
	return data, err
}

// save writes to a temp file in the same directory and renames it over the
// target, so a reader never observes a partially written document.
func (b *fileBackend) save(_ context.Context, name string, payload []byte) error {
	tmp, err := os.CreateTemp(b.dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path(name))
}

func (b *fileBackend) remove(_ context.Context, name string) error {
	err := os.Remove(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return errNotExist
	}
	return err
}

func (b *fileBackend) stats(_ context.Context) (Stats, error) {
	var st Stats
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return st, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Documents++
		st.Bytes += info.Size()
	}
	return st, nil
}
