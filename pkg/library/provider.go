package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/planwalk/planwalk/pkg/config"
	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/graph"
)

// FileProvider loads graph libraries from a yaml file or directory and
// keeps a Registry in sync with it. Reloads are all-or-nothing: a library
// that fails validation is rejected and the last known good set stays
// live.
type FileProvider struct {
	path     string
	dir      bool
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewFileProvider creates a provider for a library file or directory and
// performs the initial load. The initial load must succeed; a broken
// library at startup is a hard error, unlike a broken reload.
func NewFileProvider(path string, registry *Registry, logger *slog.Logger) (*FileProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve library path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat library path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &FileProvider{
		path:     absPath,
		dir:      info.IsDir(),
		registry: registry,
		logger:   logger,
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Watch starts watching the library path for changes and reloading on
// write. It is optional; a provider without Watch is a one-shot loader.
func (p *FileProvider) Watch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	watchDir := p.path
	if !p.dir {
		watchDir = filepath.Dir(p.path)
	}
	if err := watcher.Add(watchDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.watcher = watcher
	p.cancel = cancel
	go p.watchLoop(ctx, watcher)
	return nil
}

// Close stops the watcher if one is running.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	p.cancel()
	err := p.watcher.Close()
	p.watcher = nil
	return err
}

func (p *FileProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounce *time.Timer
	const debounceDuration = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !p.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, func() {
					if err := p.load(); err != nil {
						p.logger.Warn("library reload failed, keeping previous set",
							slog.String("path", p.path),
							slog.Any("error", err),
						)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("library watcher error", slog.Any("error", err))
		}
	}
}

func (p *FileProvider) relevant(name string) bool {
	clean := filepath.Clean(name)
	if p.dir {
		return isLibraryFile(clean)
	}
	return clean == p.path
}

func (p *FileProvider) load() error {
	var graphs []*domain.GraphDefinition
	var err error
	if p.dir {
		graphs, err = loadDir(p.path)
	} else {
		graphs, err = loadFile(p.path)
	}
	if err != nil {
		return err
	}
	p.registry.Update(graphs)
	p.logger.Info("graph library loaded",
		slog.String("path", p.path),
		slog.Int("graphs", len(graphs)),
	)
	return nil
}

func loadFile(path string) ([]*domain.GraphDefinition, error) {
	spec, err := config.ReadLibraryFile(path)
	if err != nil {
		return nil, err
	}
	return graph.LoadLibrary(spec)
}

// loadDir merges every library file in a directory. Files load in name
// order so duplicate-ID conflicts resolve the same way on every host.
func loadDir(dir string) ([]*domain.GraphDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isLibraryFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	var all []*domain.GraphDefinition
	seen := make(map[string]string)
	for _, file := range files {
		graphs, err := loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		for _, g := range graphs {
			if prev, dup := seen[g.ID]; dup {
				return nil, fmt.Errorf("graph %q defined in both %s and %s", g.ID, prev, file)
			}
			seen[g.ID] = file
			all = append(all, g)
		}
	}
	return all, nil
}

func isLibraryFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
