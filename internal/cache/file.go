package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend persists entries as content-addressed blobs under baseDir,
// with a JSON index mapping cache key -> blob filename + metadata. The
// index is rewritten atomically (temp file + rename) so a crash mid-write
// never leaves a torn index behind.
type FileBackend struct {
	mu      sync.Mutex
	baseDir string
	index   map[string]fileIndexEntry
}

type fileIndexEntry struct {
	File      string   `json:"file"`
	DataType  DataType `json:"data_type"`
	CreatedAt int64    `json:"created_at"`
	ExpiresAt int64    `json:"expires_at"`
}

const indexFileName = "index.json"

// NewFileBackend opens (or creates) a file-backed cache rooted at baseDir,
// repairing the index against the blobs actually present on disk.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	fb := &FileBackend{baseDir: baseDir, index: make(map[string]fileIndexEntry)}
	if err := fb.loadIndex(); err != nil {
		return nil, err
	}
	fb.repair()
	return fb, nil
}

func (f *FileBackend) indexPath() string {
	return filepath.Join(f.baseDir, indexFileName)
}

func (f *FileBackend) loadIndex() error {
	data, err := os.ReadFile(f.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache index: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &f.index)
}

// repair drops index entries whose blob is missing, so a partial prior
// write never surfaces a stale hit.
func (f *FileBackend) repair() {
	for key, entry := range f.index {
		if _, err := os.Stat(filepath.Join(f.baseDir, entry.File)); err != nil {
			delete(f.index, key)
		}
	}
}

func (f *FileBackend) saveIndexLocked() error {
	data, err := json.Marshal(f.index)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.baseDir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.indexPath())
}

func blobName(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]) + ".blob"
}

func (f *FileBackend) Get(key string) (*Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	meta, ok := f.index[key]
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(f.baseDir, meta.File))
	if err != nil {
		delete(f.index, key)
		return nil, false
	}
	entry := &Entry{
		Value:     data,
		DataType:  meta.DataType,
		CreatedAt: unixToTime(meta.CreatedAt),
		ExpiresAt: unixToTime(meta.ExpiresAt),
	}
	if entry.IsExpired() {
		os.Remove(filepath.Join(f.baseDir, meta.File))
		delete(f.index, key)
		_ = f.saveIndexLocked()
		return nil, false
	}
	return entry, true
}

func (f *FileBackend) Set(key string, entry *Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := blobName(key)
	if err := os.WriteFile(filepath.Join(f.baseDir, name), entry.Value, 0o644); err != nil {
		return
	}
	meta := fileIndexEntry{
		File:      name,
		DataType:  entry.DataType,
		CreatedAt: entry.CreatedAt.Unix(),
	}
	// A zero ExpiresAt means "never expires"; keep it 0 on disk so the
	// round trip through unixToTime preserves that meaning.
	if !entry.ExpiresAt.IsZero() {
		meta.ExpiresAt = entry.ExpiresAt.Unix()
	}
	f.index[key] = meta
	_ = f.saveIndexLocked()
}

func (f *FileBackend) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if meta, ok := f.index[key]; ok {
		os.Remove(filepath.Join(f.baseDir, meta.File))
		delete(f.index, key)
		_ = f.saveIndexLocked()
	}
}

func (f *FileBackend) ClearNamespace(namespace string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, meta := range f.index {
		if namespaceOf(key) == namespace {
			os.Remove(filepath.Join(f.baseDir, meta.File))
			delete(f.index, key)
		}
	}
	_ = f.saveIndexLocked()
}

func (f *FileBackend) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, meta := range f.index {
		os.Remove(filepath.Join(f.baseDir, meta.File))
	}
	f.index = make(map[string]fileIndexEntry)
	_ = f.saveIndexLocked()
}

func (f *FileBackend) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.index))
	for k := range f.index {
		keys = append(keys, k)
	}
	return keys
}

func (f *FileBackend) Close() error { return nil }
