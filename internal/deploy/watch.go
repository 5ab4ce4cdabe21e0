package deploy

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// watchedSuffixes is the set of file changes that trigger a redeploy
// (spec §4.7 "Watch mode").
var watchedSuffixes = []string{".rs", ".js", ".py", ".toml"}

var watchedNames = []string{"fly.toml", "Dockerfile", "litefs.yml"}

func isWatchedChange(name string) bool {
	base := filepath.Base(name)
	for _, n := range watchedNames {
		if base == n {
			return true
		}
	}
	for _, suffix := range watchedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// Watch runs an initial deploy, then redeploys in-process on every
// subsequent matching file change under dir (spec §4.7 "Watch mode"),
// going through internal/store directly rather than over HTTP since
// this is the variant invoked from within internal/serve's own
// process.
func (d *Deployer) Watch(ctx context.Context, dir, explicitTomlPath string) error {
	if _, err := d.Deploy(ctx, dir, explicitTomlPath); err != nil {
		return err
	}
	return WatchFiles(ctx, dir, func(reason string) {
		klog.Infof("change detected in %s, redeploying", reason)
		if _, err := d.Deploy(ctx, dir, explicitTomlPath); err != nil {
			klog.Warningf("redeploy failed: %v", err)
		}
	})
}

// WatchFiles installs a recursive fsnotify watcher over dir and calls
// onTrigger (with the path of the triggering change) whenever a
// debounced, watched-suffix change settles. onTrigger is never called
// concurrently with itself: a trigger that lands mid-call is dropped,
// per spec §4.7's single-flight rule. Exported so internal/cli's
// `deploy --watch` can drive the same file-matching and debounce logic
// while posting each trigger to an already-running `serve` over HTTP,
// instead of redeploying in-process.
func WatchFiles(ctx context.Context, dir string, onTrigger func(reason string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}

	var inFlight sync.Mutex
	debounce := newDebouncer(300 * time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isWatchedChange(event.Name) {
				continue
			}
			debounce.fire(func() {
				if !inFlight.TryLock() {
					klog.Infof("redeploy already in progress, skipping change to %s", event.Name)
					return
				}
				defer inFlight.Unlock()
				onTrigger(event.Name)
			})
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			klog.Warningf("watch error: %v", watchErr)
		}
	}
}

// addRecursive registers every directory under root with the watcher.
// fsnotify does not recurse on its own, so each directory needs its
// own watch.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "target" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// debouncer collapses a burst of rapid events into a single call,
// fired after the events go quiet for the configured delay.
type debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

func (d *debouncer) fire(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}
