package media

import (
	"fmt"
	"time"

	"offload-desktop/internal/logger"
	"offload-desktop/internal/models"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VolumeLister fetches the current removable volume snapshot.
type VolumeLister interface {
	ListVolumes() ([]models.Volume, error)
}

// Notifier raises system-level notifications. Permission may involve a user
// prompt, so it is requested lazily and at most once per watcher.
type Notifier interface {
	RequestPermission() (bool, error)
	Notify(title, body string) error
}

// EmitFunc publishes the in-app volume events to the frontend.
type EmitFunc func(event string, payload interface{})

// Watcher polls for attached removable volumes and announces each newly
// appeared volume exactly once. All state (seen set, permission cache) lives
// on the instance so watchers never interfere with each other.
type Watcher struct {
	lister    VolumeLister
	notifier  Notifier
	db        *gorm.DB
	interval  time.Duration
	mountRoot string
	emit      EmitFunc

	// OnNewVolume, when set, is invoked once per newly attached volume, after
	// the notification. The app uses it to steer the frontend to the import
	// view.
	OnNewVolume func(v models.Volume)

	seen        map[string]struct{}
	primed      bool
	permAsked   bool
	permGranted bool

	fsw    *fsnotify.Watcher
	nudge  chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a stopped watcher. db may be nil to skip notification
// history. mountRoot may be empty to disable the filesystem nudge.
func NewWatcher(lister VolumeLister, notifier Notifier, db *gorm.DB, interval time.Duration, mountRoot string, emit EmitFunc) *Watcher {
	if emit == nil {
		emit = func(string, interface{}) {}
	}
	return &Watcher{
		lister:    lister,
		notifier:  notifier,
		db:        db,
		interval:  interval,
		mountRoot: mountRoot,
		emit:      emit,
		seen:      make(map[string]struct{}),
		nudge:     make(chan struct{}, 1),
	}
}

// Start launches the poll loop. The first snapshot only seeds the seen set,
// so volumes already attached at startup never notify.
func (w *Watcher) Start() error {
	if w.stopCh != nil {
		return fmt.Errorf("media watcher already started")
	}

	w.startMountNudge()

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run()

	logger.Log.Info("media watcher started",
		zap.Duration("poll_interval", w.interval),
		zap.String("mount_root", w.mountRoot))
	return nil
}

// Stop ends the poll loop and releases the filesystem watch.
func (w *Watcher) Stop() {
	if w.stopCh == nil {
		return
	}

	close(w.stopCh)
	<-w.doneCh
	w.stopCh = nil

	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}

	logger.Log.Info("media watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		case <-w.nudge:
			w.tick()
		}
	}
}

// tick diffs the current snapshot against the previously seen set. The seen
// set is updated unconditionally, including on the first tick and when a
// volume disappears.
func (w *Watcher) tick() {
	vols, err := w.lister.ListVolumes()
	if err != nil {
		logger.Log.Warn("volume scan failed", zap.Error(err))
		return
	}

	current := make(map[string]struct{}, len(vols))
	for _, v := range vols {
		current[v.Path] = struct{}{}
	}

	if w.primed {
		for _, v := range vols {
			if _, ok := w.seen[v.Path]; !ok {
				w.announce(v)
			}
		}
	}

	w.seen = current
	w.primed = true
}

// announce fires the one-shot notification path for a newly attached
// volume: in-app event, system notification (permission allowing), history
// row, domain callback.
func (w *Watcher) announce(v models.Volume) {
	logger.Log.Info("volume attached",
		zap.String("path", v.Path),
		zap.String("name", v.Name))

	w.emit("media:volume-attached", v)

	title := "Storage attached"
	body := fmt.Sprintf("%s is ready to import (%d files)", v.Name, v.FileCount)

	if w.systemPermission() {
		if err := w.notifier.Notify(title, body); err != nil {
			logger.Log.Warn("system notification failed", zap.Error(err))
		}
	}

	w.record(v, title, body)

	if w.OnNewVolume != nil {
		w.OnNewVolume(v)
	}
}

// systemPermission requests notification permission lazily, at most once,
// and caches the answer for the watcher's lifetime. Denial only skips the
// system notification; the in-app event has already fired.
func (w *Watcher) systemPermission() bool {
	if !w.permAsked {
		w.permAsked = true
		granted, err := w.notifier.RequestPermission()
		if err != nil {
			logger.Log.Warn("notification permission request failed", zap.Error(err))
		}
		w.permGranted = granted
	}
	return w.permGranted
}

func (w *Watcher) record(v models.Volume, title, body string) {
	if w.db == nil {
		return
	}

	rec := models.NotificationRecord{
		Kind:       "volume_attached",
		Title:      title,
		Body:       body,
		VolumePath: v.Path,
	}
	if err := w.db.Create(&rec).Error; err != nil {
		logger.Log.Warn("failed to record notification", zap.Error(err))
	}
}

// startMountNudge watches the mount root and collapses filesystem events
// into an immediate poll tick. Best effort; the ticker alone is enough for
// correctness.
func (w *Watcher) startMountNudge() {
	if w.mountRoot == "" {
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log.Warn("mount watch unavailable", zap.Error(err))
		return
	}
	if err := fsw.Add(w.mountRoot); err != nil {
		logger.Log.Warn("mount watch unavailable",
			zap.String("mount_root", w.mountRoot),
			zap.Error(err))
		_ = fsw.Close()
		return
	}

	w.fsw = fsw
	go func() {
		for {
			select {
			case _, ok := <-fsw.Events:
				if !ok {
					return
				}
				select {
				case w.nudge <- struct{}{}:
				default:
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}
