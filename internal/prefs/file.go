package prefs

import (
	"fmt"
	"sync"
)

// fileMu serializes read-modify-write cycles on prefs files within the process.
var fileMu sync.Mutex

// FileBackend stores values in the [state] table of the prefs TOML file.
type FileBackend struct {
	path string
}

// NewFileBackend opens (lazily) the prefs file at path; empty means the default.
func NewFileBackend(path string) (*FileBackend, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return &FileBackend{path: resolved}, nil
}

// Path returns the resolved file path.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Get(key string) (string, error) {
	fileMu.Lock()
	defer fileMu.Unlock()

	doc, err := readDocument(f.path)
	if err != nil {
		return "", err
	}
	v, ok := doc.State[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileBackend) Set(key, value string) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	doc, err := readDocument(f.path)
	if err != nil {
		// A corrupt file is replaced rather than blocking every later write.
		doc = document{}
	}
	if doc.State == nil {
		doc.State = make(map[string]string)
	}
	doc.State[key] = value
	return writeDocument(f.path, doc)
}

func (f *FileBackend) Delete(key string) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	doc, err := readDocument(f.path)
	if err != nil {
		return err
	}
	if _, ok := doc.State[key]; !ok {
		return nil
	}
	delete(doc.State, key)
	return writeDocument(f.path, doc)
}
