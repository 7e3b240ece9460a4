package media

import (
	"fmt"
	"testing"
	"time"

	"offload-desktop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolumeLister struct {
	vols []models.Volume
	err  error
}

func (f *fakeVolumeLister) ListVolumes() ([]models.Volume, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Volume, len(f.vols))
	copy(out, f.vols)
	return out, nil
}

type fakeNotifier struct {
	permissionCalls int
	granted         bool
	permErr         error

	notifyErr error
	notified  []string
}

func (f *fakeNotifier) RequestPermission() (bool, error) {
	f.permissionCalls++
	return f.granted, f.permErr
}

func (f *fakeNotifier) Notify(title, body string) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, title+": "+body)
	return nil
}

func volume(path, name string) models.Volume {
	return models.Volume{Path: path, Name: name, Capacity: 512_000_000_000, FreeSpace: 64_000_000_000, FileCount: 482}
}

// newTickWatcher builds a watcher whose ticks the test drives by hand.
func newTickWatcher(lister *fakeVolumeLister, notifier *fakeNotifier, emit EmitFunc) *Watcher {
	return NewWatcher(lister, notifier, nil, time.Hour, "", emit)
}

func TestWatcherAttachDetection(t *testing.T) {
	t.Run("Should announce each newly attached volume exactly once", func(t *testing.T) {
		lister := &fakeVolumeLister{vols: []models.Volume{volume("/Volumes/CARD01", "CARD01")}}
		notifier := &fakeNotifier{granted: true}

		var attached []models.Volume
		w := newTickWatcher(lister, notifier, func(event string, payload interface{}) {
			if event == "media:volume-attached" {
				attached = append(attached, payload.(models.Volume))
			}
		})

		w.tick() // seeds the seen set
		require.Empty(t, attached, "already-attached volumes never notify")

		lister.vols = append(lister.vols, volume("/Volumes/CARD02", "CARD02"))
		w.tick()
		w.tick() // unchanged snapshot

		require.Len(t, attached, 1)
		assert.Equal(t, "/Volumes/CARD02", attached[0].Path)
		require.Len(t, notifier.notified, 1)
		assert.Contains(t, notifier.notified[0], "CARD02")
	})

	t.Run("Should re-announce a volume that was detached and re-attached", func(t *testing.T) {
		card := volume("/Volumes/CARD01", "CARD01")
		lister := &fakeVolumeLister{vols: []models.Volume{card}}
		notifier := &fakeNotifier{granted: true}

		count := 0
		w := newTickWatcher(lister, notifier, func(event string, payload interface{}) {
			if event == "media:volume-attached" {
				count++
			}
		})

		w.tick()
		lister.vols = nil
		w.tick() // detach
		lister.vols = []models.Volume{card}
		w.tick() // re-attach

		assert.Equal(t, 1, count)
	})

	t.Run("Should tolerate a failed scan and catch up on the next one", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		notifier := &fakeNotifier{granted: true}

		count := 0
		w := newTickWatcher(lister, notifier, func(event string, payload interface{}) {
			if event == "media:volume-attached" {
				count++
			}
		})

		w.tick()
		lister.err = fmt.Errorf("usb bus reset")
		lister.vols = []models.Volume{volume("/Volumes/CARD01", "CARD01")}
		w.tick() // failed scan, no state change
		lister.err = nil
		w.tick()

		assert.Equal(t, 1, count, "volume attached during the failed scan is picked up afterwards")
	})

	t.Run("Should invoke the new-volume callback after announcing", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		notifier := &fakeNotifier{granted: true}

		w := newTickWatcher(lister, notifier, nil)
		var steered []string
		w.OnNewVolume = func(v models.Volume) { steered = append(steered, v.Path) }

		w.tick()
		lister.vols = []models.Volume{volume("/Volumes/CARD01", "CARD01")}
		w.tick()

		assert.Equal(t, []string{"/Volumes/CARD01"}, steered)
	})
}

func TestWatcherPermission(t *testing.T) {
	t.Run("Should request notification permission at most once", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		notifier := &fakeNotifier{granted: true}

		w := newTickWatcher(lister, notifier, nil)

		w.tick()
		lister.vols = []models.Volume{volume("/Volumes/CARD01", "CARD01")}
		w.tick()
		lister.vols = append(lister.vols, volume("/Volumes/CARD02", "CARD02"))
		w.tick()

		assert.Equal(t, 1, notifier.permissionCalls)
		assert.Len(t, notifier.notified, 2)
	})

	t.Run("Should not request permission before the first new volume", func(t *testing.T) {
		lister := &fakeVolumeLister{vols: []models.Volume{volume("/Volumes/CARD01", "CARD01")}}
		notifier := &fakeNotifier{granted: true}

		w := newTickWatcher(lister, notifier, nil)
		w.tick()
		w.tick()

		assert.Zero(t, notifier.permissionCalls, "permission is lazy")
	})

	t.Run("Should still emit the in-app event when permission is denied", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		notifier := &fakeNotifier{granted: false}

		count := 0
		w := newTickWatcher(lister, notifier, func(event string, payload interface{}) {
			if event == "media:volume-attached" {
				count++
			}
		})

		w.tick()
		lister.vols = []models.Volume{volume("/Volumes/CARD01", "CARD01")}
		w.tick()

		assert.Equal(t, 1, count)
		assert.Empty(t, notifier.notified, "system notification suppressed on denial")
		assert.Equal(t, 1, notifier.permissionCalls)
	})

	t.Run("Should treat a permission error as denial without retrying", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		notifier := &fakeNotifier{granted: false, permErr: fmt.Errorf("notification daemon unavailable")}

		w := newTickWatcher(lister, notifier, nil)

		w.tick()
		lister.vols = []models.Volume{volume("/Volumes/CARD01", "CARD01")}
		w.tick()
		lister.vols = append(lister.vols, volume("/Volumes/CARD02", "CARD02"))
		w.tick()

		assert.Equal(t, 1, notifier.permissionCalls)
		assert.Empty(t, notifier.notified)
	})
}

func TestWatcherLifecycle(t *testing.T) {
	t.Run("Should reject a second start", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		w := NewWatcher(lister, &fakeNotifier{}, nil, time.Hour, "", nil)

		require.NoError(t, w.Start())
		defer w.Stop()

		assert.Error(t, w.Start())
	})

	t.Run("Should stop cleanly and allow a restart", func(t *testing.T) {
		lister := &fakeVolumeLister{}
		w := NewWatcher(lister, &fakeNotifier{}, nil, time.Hour, "", nil)

		require.NoError(t, w.Start())
		w.Stop()
		require.NoError(t, w.Start())
		w.Stop()
	})
}
