package usecases

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// DirectorySync keeps the collection in step with a folder on disk.
type DirectorySync struct {
	ingest    *IngestUseCase
	documents ports.DocumentStore
	watcher   ports.FileWatcher
	loaders   map[string]ports.DocumentLoader
	logger    *slog.Logger
}

// NewDirectorySync creates a sync that routes files to loaders by extension.
func NewDirectorySync(
	ingest *IngestUseCase,
	documents ports.DocumentStore,
	watcher ports.FileWatcher,
	loaders []ports.DocumentLoader,
	logger *slog.Logger,
) *DirectorySync {
	if logger == nil {
		logger = slog.Default()
	}
	byExt := make(map[string]ports.DocumentLoader)
	for _, l := range loaders {
		for _, ext := range l.SupportedExtensions() {
			byExt[strings.ToLower(ext)] = l
		}
	}
	return &DirectorySync{
		ingest:    ingest,
		documents: documents,
		watcher:   watcher,
		loaders:   byExt,
		logger:    logger,
	}
}

// Scan ingests every supported file under dir and returns how many were added.
// Files that fail to load are logged and skipped.
func (s *DirectorySync) Scan(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !s.supported(path) {
			return nil
		}
		if err := s.upsert(ctx, path); err != nil {
			s.logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("scanning %s: %w", dir, err)
	}
	return count, nil
}

// Run applies watcher events until ctx is done.
func (s *DirectorySync) Run(ctx context.Context, dir string) error {
	events, err := s.watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	defer s.watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.apply(ctx, ev)
		}
	}
}

func (s *DirectorySync) apply(ctx context.Context, ev ports.FileEvent) {
	switch ev.Operation {
	case ports.FileCreated, ports.FileModified:
		if !s.supported(ev.Path) {
			return
		}
		if err := s.upsert(ctx, ev.Path); err != nil {
			s.logger.Warn("ingesting changed file failed", "path", ev.Path, "error", err)
		}
	case ports.FileDeleted:
		if err := s.remove(ctx, ev.Path); err != nil {
			s.logger.Warn("removing deleted file failed", "path", ev.Path, "error", err)
		}
	}
}

// upsert loads path and ingests it under the id already used for that path, if any.
func (s *DirectorySync) upsert(ctx context.Context, path string) error {
	loader := s.loaders[strings.ToLower(filepath.Ext(path))]
	doc, err := loader.Load(ctx, path)
	if err != nil {
		return err
	}
	existing, err := s.findByPath(ctx, path)
	if err != nil {
		return err
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}
	doc.Path = path
	return s.ingest.Ingest(ctx, doc)
}

func (s *DirectorySync) remove(ctx context.Context, path string) error {
	existing, err := s.findByPath(ctx, path)
	if err != nil || existing == nil {
		return err
	}
	if err := s.ingest.Delete(ctx, existing.ID); err != nil && !errors.Is(err, ports.ErrDocumentNotFound) {
		return err
	}
	s.logger.Info("document removed", "document_id", existing.ID, "path", path)
	return nil
}

func (s *DirectorySync) findByPath(ctx context.Context, path string) (*entities.Document, error) {
	docs, err := s.documents.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Path == path {
			return &docs[i], nil
		}
	}
	return nil, nil
}

func (s *DirectorySync) supported(path string) bool {
	_, ok := s.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}
