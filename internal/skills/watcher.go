package skills

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/logging"
)

// CachedScanner memoizes a scanner's catalogue and drops the cache when
// anything under a watched root changes.
type CachedScanner struct {
	inner  *Scanner
	logger *logging.Logger

	mu         sync.Mutex
	cached     *core.SkillCatalogue
	generation uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewCachedScanner wraps inner. When watch is true the existing roots and
// their subdirectories are watched for changes; roots that do not exist yet
// are not watched and only Invalidate refreshes them.
func NewCachedScanner(inner *Scanner, watch bool, logger *logging.Logger) (*CachedScanner, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &CachedScanner{
		inner:  inner,
		logger: logger,
		done:   make(chan struct{}),
	}
	if !watch {
		return c, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c.watcher = w
	for _, root := range inner.Roots() {
		c.addTree(root)
	}

	c.wg.Add(1)
	go c.watchLoop()
	return c, nil
}

// Scan returns the cached catalogue, rescanning when the cache is empty.
func (c *CachedScanner) Scan(ctx context.Context) (core.SkillCatalogue, error) {
	c.mu.Lock()
	if c.cached != nil {
		cat := *c.cached
		c.mu.Unlock()
		return cat, nil
	}
	gen := c.generation
	c.mu.Unlock()

	cat, err := c.inner.Scan(ctx)
	if err != nil {
		return core.SkillCatalogue{}, err
	}

	// A change observed mid-scan leaves the cache empty.
	c.mu.Lock()
	if c.generation == gen {
		c.cached = &cat
	}
	c.mu.Unlock()
	return cat, nil
}

// Invalidate drops the cached catalogue.
func (c *CachedScanner) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.generation++
	c.mu.Unlock()
}

// Close stops watching. It is safe to call more than once.
func (c *CachedScanner) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.watcher == nil {
		return nil
	}
	close(c.done)
	err := c.watcher.Close()
	c.wg.Wait()
	return err
}

func (c *CachedScanner) addTree(root string) {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := c.watcher.Add(path); err != nil {
				c.logger.Debug("cannot watch skill directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (c *CachedScanner) watchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					c.addTree(event.Name)
				}
			}
			c.logger.Debug("skill catalogue changed", "path", event.Name, "op", event.Op.String())
			c.Invalidate()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("skill watcher error", "error", err)
		}
	}
}

var _ core.SkillScanner = (*CachedScanner)(nil)
var _ core.SkillScanner = (*Scanner)(nil)
