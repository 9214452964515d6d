package policy

import (
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Provider hands out the current schedules and supports hot reload from a
// watched file. Readers always see a consistent Schedules snapshot.
type Provider struct {
	current atomic.Pointer[Schedules]
	logger  *zap.Logger
	done    chan struct{}
}

// NewProvider creates a provider seeded with the given schedules.
func NewProvider(initial Schedules, logger *zap.Logger) *Provider {
	p := &Provider{
		logger: logger,
		done:   make(chan struct{}),
	}
	p.current.Store(&initial)
	return p
}

// Current returns the schedules snapshot in effect right now.
func (p *Provider) Current() Schedules {
	return *p.current.Load()
}

// Page returns the current foreground schedule.
func (p *Provider) Page() PageSchedule {
	return p.current.Load().Page
}

// Worker returns the current interception proxy schedule.
func (p *Provider) Worker() WorkerSchedule {
	return p.current.Load().Worker
}

// Watch reloads the schedules whenever the file changes. Events are
// debounced because editors typically fire several writes per save.
func (p *Provider) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		timer := time.NewTimer(0)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		for {
			select {
			case e, ok := <-watcher.Events:
				if !ok {
					timer.Stop()
					return
				}
				if e.Has(fsnotify.Chmod) {
					continue
				}
				if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
					// Re-watch the original path once the file reappears.
					_ = watcher.Remove(path)
					_ = watcher.Add(path)
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(2 * time.Second)

			case <-timer.C:
				p.reload(path)

			case err, ok := <-watcher.Errors:
				if !ok {
					timer.Stop()
					return
				}
				p.logger.Warn("Schedule watcher error", zap.Error(err))

			case <-p.done:
				timer.Stop()
				return
			}
		}
	}()

	p.logger.Info("Watching schedules file for changes", zap.String("path", path))
	return nil
}

// Stop terminates the watch goroutine.
func (p *Provider) Stop() {
	close(p.done)
}

func (p *Provider) reload(path string) {
	schedules, err := Load(path, p.logger)
	if err != nil {
		p.logger.Error("Failed to reload schedules, keeping previous", zap.String("path", path), zap.Error(err))
		return
	}
	p.current.Store(schedules)
	p.logger.Info("Schedules reloaded", zap.String("path", path))
}
