package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const DefaultFilename = "test-data.json"

// FileBackend keeps the document as one JSON file. It is the backend of the
// privileged process.
type FileBackend struct {
	path string
}

func NewFileBackend(dataDir, filename string) *FileBackend {
	if dataDir == "" {
		dataDir = "data"
	}
	if filename == "" {
		filename = DefaultFilename
	}
	return &FileBackend{path: filepath.Join(dataDir, filename)}
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) (Document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc := Document{CollectionEvents: {}, CollectionRooms: {}}
		if err := b.write(doc, false); err != nil {
			return nil, fmt.Errorf("init %s: %w", b.path, err)
		}
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.path, err)
	}
	return doc, nil
}

func (b *FileBackend) Save(ctx context.Context, doc Document, _ string) error {
	return b.write(doc, false)
}

// Flush rewrites the file and syncs it to disk.
func (b *FileBackend) Flush(ctx context.Context, doc Document) error {
	return b.write(doc, true)
}

func (b *FileBackend) write(doc Document, sync bool) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}
