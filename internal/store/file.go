package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"gopkg.in/yaml.v3"
)

type document struct {
	Requests map[string]Record `yaml:"requests"`
}

// FileStore keeps all records in one YAML file under a "requests" section.
type FileStore struct {
	path        string
	mutex       sync.Mutex
	retryConfig retry.Config
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(doc.Requests))
	for name, record := range doc.Requests {
		record.Name = name
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})

	return records, nil
}

func (s *FileStore) Save(ctx context.Context, record Record) error {
	return s.update(ctx, func(doc *document) {
		removeFold(doc, record.Name)
		doc.Requests[record.Name] = record
	})
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	return s.update(ctx, func(doc *document) {
		removeFold(doc, name)
	})
}

func (s *FileStore) update(ctx context.Context, mutate func(*document)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	mutate(doc)

	retryer := retry.New[struct{}](s.retryConfig)
	_, err = retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.write(doc)
	})
	return err
}

func (s *FileStore) read() (*document, error) {
	doc := &document{}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc.Requests = make(map[string]Record)
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if doc.Requests == nil {
		doc.Requests = make(map[string]Record)
	}

	return doc, nil
}

// write replaces the file atomically.
func (s *FileStore) write(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode endpoints: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func removeFold(doc *document, name string) {
	for key := range doc.Requests {
		if strings.EqualFold(key, name) {
			delete(doc.Requests, key)
		}
	}
}
