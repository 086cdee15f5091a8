package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gamma-omg/contextqa/catalog"
	"github.com/gamma-omg/contextqa/chunker"
	"github.com/gamma-omg/contextqa/ingest"
	"github.com/gamma-omg/contextqa/readers"
)

const defaultMergeEventsDelay = 200 * time.Millisecond

type ingester interface {
	IngestBatch(ctx context.Context, docs []ingest.Document, cfg chunker.Config) (*ingest.Result, error)
}

type sourceCatalog interface {
	All(ctx context.Context) ([]catalog.Source, error)
	Delete(ctx context.Context, name string) error
}

type chunkForgetter interface {
	Delete(ctx context.Context, source string) error
}

// Registry mirrors a watched directory into the knowledge base. Documents
// are named by their path relative to the root, so sources ingested through
// the API are never confused with watched files.
type Registry struct {
	log              *slog.Logger
	root             string
	mergeEventsDelay time.Duration
	processor        ingester
	catalog          sourceCatalog
	store            chunkForgetter
	readers          []readers.FileReader
	chunkCfg         chunker.Config

	// known holds the watched sources this registry has put into the
	// catalog; only those are eligible for removal.
	known map[string]struct{}
}

func NewRegistry(log *slog.Logger, root string, delay time.Duration, processor ingester,
	cat sourceCatalog, store chunkForgetter, rds []readers.FileReader, chunkCfg chunker.Config) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if delay <= 0 {
		delay = defaultMergeEventsDelay
	}

	return &Registry{
		log:              log,
		root:             root,
		mergeEventsDelay: delay,
		processor:        processor,
		catalog:          cat,
		store:            store,
		readers:          rds,
		chunkCfg:         chunkCfg,
	}
}

// Sync brings the knowledge base in line with the directory: new and changed
// files are ingested (unchanged ones are skipped by digest), files that
// disappeared since a previous sync are forgotten.
func (r *Registry) Sync(ctx context.Context) error {
	docs, err := r.collectDocs()
	if err != nil {
		return fmt.Errorf("failed to scan watched directory: %w", err)
	}

	if r.known == nil {
		if err := r.seedKnown(ctx); err != nil {
			return err
		}
	}

	res, err := r.processor.IngestBatch(ctx, docs, r.chunkCfg)
	if err != nil {
		return fmt.Errorf("failed to ingest watched documents: %w", err)
	}
	if res.Stored > 0 || res.Failed > 0 {
		r.log.Info("synced watched directory",
			"stored", res.Stored, "unchanged", res.Duplicates, "failed", res.Failed)
	}

	return r.forgetRemoved(ctx, docs)
}

func (r *Registry) collectDocs() ([]ingest.Document, error) {
	var docs []ingest.Document
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		reader, e := readers.For(r.readers, path)
		if e != nil {
			r.log.Warn("skipping unsupported file", "path", path)
			return nil
		}

		text, e := reader.ReadText(path)
		if e != nil {
			return fmt.Errorf("failed to read document %s: %w", path, e)
		}

		name, e := filepath.Rel(r.root, path)
		if e != nil {
			return e
		}

		docs = append(docs, ingest.Document{Name: name, Content: text})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// seedKnown reclaims catalog entries from a previous run. An entry counts as
// watched when its name resolves to a readable file under the root; API
// uploads keep bare file names and stay untouched.
func (r *Registry) seedKnown(ctx context.Context) error {
	r.known = make(map[string]struct{})

	sources, err := r.catalog.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list catalog: %w", err)
	}

	for _, src := range sources {
		path := filepath.Join(r.root, src.Name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			r.known[src.Name] = struct{}{}
		}
	}

	return nil
}

func (r *Registry) forgetRemoved(ctx context.Context, onDisk []ingest.Document) error {
	present := make(map[string]struct{}, len(onDisk))
	for _, d := range onDisk {
		present[d.Name] = struct{}{}
	}

	for name := range r.known {
		if _, ok := present[name]; ok {
			continue
		}

		if err := r.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to remove chunks of %s: %w", name, err)
		}
		if err := r.catalog.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to remove %s from catalog: %w", name, err)
		}

		delete(r.known, name)
		r.log.Info("forgot removed document", "source", name)
	}

	for name := range present {
		r.known[name] = struct{}{}
	}

	return nil
}

// Watch starts reacting to file system events under the root. Bursts of
// events are merged for mergeEventsDelay before a sync runs. The watcher
// stops when ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	err = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory tree: %w", err)
	}

	go r.watchLoop(ctx, watcher)

	return nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	timer := time.NewTimer(r.mergeEventsDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watcher.Add(ev.Name); err != nil {
						r.log.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			timer.Reset(r.mergeEventsDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("file watcher error", "error", err)

		case <-timer.C:
			if err := r.Sync(ctx); err != nil {
				r.log.Error("failed to sync watched directory", "error", err)
			}
		}
	}
}
