package worker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"offload-desktop/internal/logger"
	"offload-desktop/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Channel is a push event kind on the worker's event feed.
type Channel string

const (
	ChannelProgress   Channel = "progress"
	ChannelJobUpdated Channel = "job_updated"
)

// Envelope is the wire frame for every pushed event. Payload is the raw JSON
// of either a ProgressEvent or a full Job record depending on Channel.
type Envelope struct {
	Channel Channel         `json:"channel"`
	Domain  models.Domain   `json:"domain"`
	Payload json.RawMessage `json:"payload"`
}

// Subscription is a live registration for one (domain, channel) pair.
// Delivery is lossy: a subscriber that falls behind has events dropped, and
// the reconciliation poller backfills whatever was missed.
type Subscription interface {
	Events() <-chan Envelope
	Close() error
}

const subscriptionBuffer = 64

// EventFeed holds a single WebSocket connection to the worker and fans
// incoming envelopes out to matching subscriptions. The connection is
// re-dialled with backoff after any read error; events arriving while
// disconnected are simply missed.
type EventFeed struct {
	url   string
	token string

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	conn   *websocket.Conn
	stopCh chan struct{}
	doneCh chan struct{}
}

type subscription struct {
	feed    *EventFeed
	id      int
	domain  models.Domain
	channel Channel
	events  chan Envelope
	closed  bool
}

func (s *subscription) Events() <-chan Envelope {
	return s.events
}

func (s *subscription) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.feed.subs, s.id)
	close(s.events)
	return nil
}

// NewEventFeed creates a feed for the given ws:// or wss:// URL.
func NewEventFeed(url, token string) *EventFeed {
	return &EventFeed{
		url:   url,
		token: token,
		subs:  make(map[int]*subscription),
	}
}

// Start launches the connect/read loop. Safe to call once.
func (f *EventFeed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopCh != nil {
		return
	}
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	go f.run(f.stopCh, f.doneCh)
}

// Stop closes the connection and ends the read loop. Open subscriptions stay
// registered but receive nothing further; their owners close them on
// teardown. The loop only ever watches the channels it captured at Start, so
// clearing the field here cannot be observed mid-iteration.
func (f *EventFeed) Stop() {
	f.mu.Lock()
	if f.stopCh == nil {
		f.mu.Unlock()
		return
	}
	stopCh := f.stopCh
	doneCh := f.doneCh
	f.stopCh = nil
	if f.conn != nil {
		_ = f.conn.Close()
	}
	f.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Subscribe registers for one (domain, channel) pair. Registration is local
// and immediate, but events are only delivered while the feed's connection
// is up; the caller's poller covers the gap.
func (f *EventFeed) Subscribe(domain models.Domain, channel Channel) (Subscription, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("unknown domain: %s", domain)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &subscription{
		feed:    f,
		id:      f.nextID,
		domain:  domain,
		channel: channel,
		events:  make(chan Envelope, subscriptionBuffer),
	}
	f.subs[sub.id] = sub
	return sub, nil
}

func (f *EventFeed) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		conn, err := f.dial()
		if err != nil {
			logger.Log.Warn("event feed connect failed",
				zap.String("url", f.url),
				zap.Duration("retry_in", backoff),
				zap.Error(err))

			select {
			case <-stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		logger.Log.Info("event feed connected", zap.String("url", f.url))
		backoff = time.Second

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()

		// Stop may have fired while dialling, before it could see the
		// connection to close it.
		select {
		case <-stopCh:
			_ = conn.Close()
			return
		default:
		}

		f.readLoop(conn, stopCh)

		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		_ = conn.Close()

		select {
		case <-stopCh:
			return
		default:
		}
	}
}

func (f *EventFeed) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(f.url, header)
	return conn, err
}

func (f *EventFeed) readLoop(conn *websocket.Conn, stopCh chan struct{}) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-stopCh:
			default:
				logger.Log.Warn("event feed read failed, reconnecting", zap.Error(err))
			}
			return
		}
		f.dispatch(env)
	}
}

// dispatch fans an envelope out to every matching subscription without
// blocking; full subscriber buffers drop the event.
func (f *EventFeed) dispatch(env Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		if sub.domain != env.Domain || sub.channel != env.Channel {
			continue
		}
		select {
		case sub.events <- env:
		default:
			logger.Log.Debug("dropping event for slow subscriber",
				zap.String("domain", string(env.Domain)),
				zap.String("channel", string(env.Channel)))
		}
	}
}
