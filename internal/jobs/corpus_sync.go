package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/policyrag/internal/domain"
)

const (
	// MaxRetries is the number of failed attempts before a file version is given up on
	MaxRetries = 3
)

// FileIngester organizes a source file and adds it to the index
type FileIngester interface {
	IngestFile(ctx context.Context, path, filename string) (*domain.DocumentMetadata, error)
}

type fileState struct {
	modTime time.Time
	size    int64
	retries int
	settled bool
}

// CorpusSync ingests source files that are new or changed since the last pass.
// A file version that fails MaxRetries times is left alone until it changes again.
type CorpusSync struct {
	dir      string
	ingester FileIngester

	mu    sync.Mutex
	files map[string]*fileState
}

// NewCorpusSync creates a CorpusSync watching the .txt files directly under dir
func NewCorpusSync(dir string, ingester FileIngester) *CorpusSync {
	return &CorpusSync{
		dir:      dir,
		ingester: ingester,
		files:    make(map[string]*fileState),
	}
}

// Prime marks every file currently in the directory as ingested.
func (s *CorpusSync) Prime() error {
	entries, err := s.scan()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, info := range entries {
		s.files[name] = &fileState{modTime: info.ModTime(), size: info.Size(), settled: true}
	}
	return nil
}

// ProcessJobs implements the JobProcessor interface
func (s *CorpusSync) ProcessJobs(ctx context.Context) error {
	entries, err := s.scan()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var pending []string
	for _, name := range names {
		info := entries[name]
		state, ok := s.files[name]
		if !ok || !state.modTime.Equal(info.ModTime()) || state.size != info.Size() {
			state = &fileState{modTime: info.ModTime(), size: info.Size()}
			s.files[name] = state
		}
		if !state.settled {
			pending = append(pending, name)
		}
	}

	if len(pending) == 0 {
		return nil
	}

	log.Printf("corpus sync: %d new or changed files in %s", len(pending), s.dir)

	for _, name := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.ingest(ctx, name, s.files[name])
	}

	return nil
}

func (s *CorpusSync) ingest(ctx context.Context, name string, state *fileState) {
	meta, err := s.ingester.IngestFile(ctx, filepath.Join(s.dir, name), name)
	if err == nil {
		state.settled = true
		log.Printf("corpus sync: %s indexed (category %s, type %s)", name, meta.Category, meta.DocumentType)
		return
	}

	if errors.Is(err, domain.ErrEmptyDocument) {
		state.settled = true
		log.Printf("corpus sync: skipping %s: %v", name, err)
		return
	}

	state.retries++
	if state.retries >= MaxRetries {
		state.settled = true
		log.Printf("corpus sync: %s exceeded max retries (%d), waiting for a change: %v", name, MaxRetries, err)
		return
	}
	log.Printf("corpus sync: %s failed, will be retried (attempt %d/%d): %v", name, state.retries, MaxRetries, err)
}

func (s *CorpusSync) scan() (map[string]os.FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %s: %w", s.dir, err)
	}

	files := make(map[string]os.FileInfo, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files[e.Name()] = info
	}
	return files, nil
}
