package worker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"offload-desktop/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventServer is a minimal worker event endpoint: it upgrades each request
// and holds the connection open, optionally writing envelopes to it.
func eventServer(t *testing.T) (*httptest.Server, chan Envelope) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	outgoing := make(chan Envelope, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for env := range outgoing {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
		// Keep the connection parked until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return server, outgoing
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitConnected(t *testing.T, feed *EventFeed) {
	t.Helper()
	require.Eventually(t, func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.conn != nil
	}, 2*time.Second, 10*time.Millisecond, "feed never connected")
}

func envelope(domain models.Domain, channel Channel, jobID string) Envelope {
	raw, _ := json.Marshal(models.ProgressEvent{JobID: jobID})
	return Envelope{Channel: channel, Domain: domain, Payload: raw}
}

func TestEventFeedSubscribe(t *testing.T) {
	t.Run("Should reject an unknown domain", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:9000/events", "")

		_, err := feed.Subscribe("archive", ChannelProgress)
		assert.Error(t, err)
	})

	t.Run("Should hand out independent subscriptions", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:9000/events", "")

		a, err := feed.Subscribe(models.DomainImport, ChannelProgress)
		require.NoError(t, err)
		b, err := feed.Subscribe(models.DomainImport, ChannelProgress)
		require.NoError(t, err)

		require.NoError(t, a.Close())

		feed.dispatch(envelope(models.DomainImport, ChannelProgress, "job-1"))
		assert.Len(t, b.Events(), 1, "surviving subscription still receives")
	})
}

func TestEventFeedDispatch(t *testing.T) {
	t.Run("Should route only to matching domain and channel", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:9000/events", "")

		importProgress, _ := feed.Subscribe(models.DomainImport, ChannelProgress)
		importUpdates, _ := feed.Subscribe(models.DomainImport, ChannelJobUpdated)
		backupProgress, _ := feed.Subscribe(models.DomainBackup, ChannelProgress)

		feed.dispatch(envelope(models.DomainImport, ChannelProgress, "job-1"))

		assert.Len(t, importProgress.Events(), 1)
		assert.Empty(t, importUpdates.Events())
		assert.Empty(t, backupProgress.Events())
	})

	t.Run("Should drop events for a full subscriber instead of blocking", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:9000/events", "")
		sub, _ := feed.Subscribe(models.DomainImport, ChannelProgress)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < subscriptionBuffer+10; i++ {
				feed.dispatch(envelope(models.DomainImport, ChannelProgress, "job-1"))
			}
		}()
		<-done

		assert.Len(t, sub.Events(), subscriptionBuffer)
	})

	t.Run("Should not deliver to a closed subscription", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:9000/events", "")
		sub, _ := feed.Subscribe(models.DomainImport, ChannelProgress)

		require.NoError(t, sub.Close())
		assert.NotPanics(t, func() {
			feed.dispatch(envelope(models.DomainImport, ChannelProgress, "job-1"))
		})

		_, open := <-sub.Events()
		assert.False(t, open, "channel is closed and drained")
	})

	t.Run("Should tolerate closing a subscription twice", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:9000/events", "")
		sub, _ := feed.Subscribe(models.DomainImport, ChannelProgress)

		require.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}

func TestEventFeedLifecycle(t *testing.T) {
	t.Run("Should stop cleanly before a connection was established", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:1/events", "")
		feed.Start()
		assert.NotPanics(t, feed.Stop)
	})

	t.Run("Should ignore a redundant stop", func(t *testing.T) {
		feed := NewEventFeed("ws://localhost:1/events", "")
		assert.NotPanics(t, feed.Stop)
	})

	t.Run("Should stop promptly while the read loop is parked on a live connection", func(t *testing.T) {
		server, outgoing := eventServer(t)
		defer close(outgoing)

		feed := NewEventFeed(wsURL(server), "")
		feed.Start()
		waitConnected(t, feed)

		stopped := make(chan struct{})
		go func() {
			feed.Stop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(3 * time.Second):
			t.Fatal("Stop did not return while a connection was live")
		}
	})

	t.Run("Should deliver envelopes received over a live connection", func(t *testing.T) {
		server, outgoing := eventServer(t)
		defer close(outgoing)

		feed := NewEventFeed(wsURL(server), "")
		sub, err := feed.Subscribe(models.DomainImport, ChannelProgress)
		require.NoError(t, err)

		feed.Start()
		defer feed.Stop()
		waitConnected(t, feed)

		outgoing <- envelope(models.DomainImport, ChannelProgress, "job-1")

		select {
		case env := <-sub.Events():
			assert.Equal(t, ChannelProgress, env.Channel)
			assert.Equal(t, models.DomainImport, env.Domain)
		case <-time.After(3 * time.Second):
			t.Fatal("envelope was not delivered")
		}
	})
}
