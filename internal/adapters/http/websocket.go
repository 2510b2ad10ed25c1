package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/usecases"
	"github.com/propmap/propmap/internal/pkg/metrics"
)

// clientMessage is sent by the browser map. Which fields are read depends
// on Type:
//
//	mount     url, viewport, bounds, settle
//	move      viewport, bounds
//	settled   viewport, bounds (optional)
//	draft     key, value
//	commit, discard, clear
//	navigate  url
//	expand    cluster_id
//	leaves    cluster_id, limit, offset
type clientMessage struct {
	Type      string              `json:"type"`
	URL       string              `json:"url,omitempty"`
	Viewport  *domain.Viewport    `json:"viewport,omitempty"`
	Bounds    *domain.BoundingBox `json:"bounds,omitempty"`
	Settle    bool                `json:"settle,omitempty"`
	Key       string              `json:"key,omitempty"`
	Value     domain.FilterValue  `json:"value"`
	ClusterID int                 `json:"cluster_id,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

// serverMessage is pushed to the browser.
type serverMessage struct {
	Type       string           `json:"type"`
	URL        string           `json:"url,omitempty"`
	Data       any              `json:"data,omitempty"`
	Center     *domain.GeoPoint `json:"center,omitempty"`
	Zoom       *float64         `json:"zoom,omitempty"`
	DurationMS int64            `json:"duration_ms,omitempty"`
	ClusterID  int              `json:"cluster_id,omitempty"`
	Message    string           `json:"message,omitempty"`
}

var (
	errNotMounted     = errors.New("session not mounted")
	errAlreadyMounted = errors.New("session already mounted")
	errNoBounds       = errors.New("client has not reported bounds")
)

// mapSocket is the server side of one browser map. It is the session's
// MapEngine (camera commands go out as fly_to, bounds come in with move
// messages) and its Navigator (the client's address bar, mirrored by
// replace_url and navigate).
type mapSocket struct {
	id        string
	deps      *Dependencies
	log       *slog.Logger
	send      func(v any) error
	afterFunc usecases.AfterFunc

	mu     sync.Mutex
	url    string
	bounds *domain.BoundingBox
	settle bool

	session *usecases.MapSession
}

func newMapSocket(deps *Dependencies, send func(v any) error) *mapSocket {
	id := uuid.NewString()
	return &mapSocket{
		id:   id,
		deps: deps,
		log:  deps.logger().With("session", id),
		send: send,
	}
}

// Ready reports whether the client has sent its visible bounds.
func (s *mapSocket) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds != nil
}

func (s *mapSocket) VisibleBounds(context.Context) (domain.BoundingBox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bounds == nil {
		return domain.BoundingBox{}, errNoBounds
	}
	return *s.bounds, nil
}

func (s *mapSocket) SupportsSettle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settle
}

func (s *mapSocket) FlyTo(_ context.Context, center domain.GeoPoint, zoom float64, duration time.Duration) error {
	return s.send(serverMessage{
		Type:       "fly_to",
		Center:     &center,
		Zoom:       &zoom,
		DurationMS: duration.Milliseconds(),
	})
}

func (s *mapSocket) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *mapSocket) Replace(_ context.Context, query string) error {
	s.mu.Lock()
	s.url = query
	s.mu.Unlock()
	return s.send(serverMessage{Type: "replace_url", URL: query})
}

// setView records what the client reported with a camera message. A message
// without bounds invalidates the previous ones.
func (s *mapSocket) setView(m clientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Bounds != nil && m.Bounds.Valid() {
		b := *m.Bounds
		s.bounds = &b
	} else {
		s.bounds = nil
	}
}

func (s *mapSocket) onClusters(_ context.Context, snap usecases.SyncSnapshot, features []domain.ClusterFeature) {
	zoom := snap.Viewport.Zoom
	if err := s.send(serverMessage{
		Type: "clusters",
		URL:  snap.URL,
		Zoom: &zoom,
		Data: featureCollection(features, snap.Bounds),
	}); err != nil {
		s.log.Debug("send clusters failed", "error", err)
	}
}

// handle applies one client message. Errors are reported back to the
// client; the connection stays open.
func (s *mapSocket) handle(ctx context.Context, m clientMessage) error {
	if m.Type == "mount" {
		return s.mount(ctx, m)
	}
	if s.session == nil {
		return errNotMounted
	}

	switch m.Type {
	case "move":
		if m.Viewport == nil {
			return errors.New("move requires a viewport")
		}
		s.setView(m)
		s.session.Move(*m.Viewport)

	case "settled":
		if m.Viewport != nil {
			s.setView(m)
			s.session.Move(*m.Viewport)
		}
		s.session.Settled(ctx)

	case "draft":
		key := domain.FilterKey(m.Key)
		if !key.Valid() {
			return fmt.Errorf("unknown filter key %q", m.Key)
		}
		s.session.SetDraft(key, m.Value)

	case "commit":
		s.session.Commit(ctx)

	case "discard":
		s.session.Discard()

	case "clear":
		s.session.Clear(ctx)

	case "navigate":
		s.mu.Lock()
		s.url = strings.TrimPrefix(m.URL, "?")
		s.mu.Unlock()
		s.session.Navigate(ctx, m.URL)

	case "expand":
		zoom := float64(s.session.ExpandCluster(ctx, m.ClusterID))
		return s.send(serverMessage{Type: "expansion", ClusterID: m.ClusterID, Zoom: &zoom})

	case "leaves":
		leaves := s.session.Leaves(ctx, m.ClusterID, m.Limit, m.Offset)
		return s.send(serverMessage{Type: "leaves", ClusterID: m.ClusterID, Data: leaves})

	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func (s *mapSocket) mount(ctx context.Context, m clientMessage) error {
	if s.session != nil {
		return errAlreadyMounted
	}

	s.mu.Lock()
	s.url = strings.TrimPrefix(m.URL, "?")
	s.settle = m.Settle
	s.mu.Unlock()
	s.setView(m)

	s.session = usecases.NewMapSession(s.id, s, s, s.deps.Clusters, s.onClusters, usecases.SyncOptions{
		Debounce:  s.deps.Sessions.Debounce,
		AfterFunc: s.afterFunc,
		Initial:   m.Viewport,
		Logger:    s.log,
	})
	snap := s.session.Mount(ctx)

	return s.send(serverMessage{
		Type: "mounted",
		URL:  snap.URL,
		Data: sessionState{Session: s.id, Viewport: snap.Viewport, Filters: snap.Filters, Bounds: snap.Bounds},
	})
}

func (s *mapSocket) close() {
	if s.session != nil {
		s.session.Close()
	}
}

// sessionState is the payload of the mounted message.
type sessionState struct {
	Session  string             `json:"session"`
	Viewport domain.Viewport    `json:"viewport"`
	Filters  domain.FilterSet   `json:"filters"`
	Bounds   domain.BoundingBox `json:"bounds"`
}

// WebSocketHandler upgrades to a map session. Clients send JSON messages,
// starting with {"type":"mount","url":"<address bar query>"}; the server
// answers with mounted, clusters, replace_url, fly_to, expansion, leaves
// and error messages.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		var wmu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			wmu.Lock()
			defer wmu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		sock := newMapSocket(deps, writeJSON)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		metrics.ActiveSessions.Inc()
		defer metrics.ActiveSessions.Dec()
		sock.log.Info("map session opened", "remote", c.RemoteAddr().String())

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					wmu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					wmu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		idle := deps.Sessions.IdleTimeout
		for {
			if idle > 0 {
				_ = c.SetReadDeadline(time.Now().Add(idle))
			}
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m clientMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(serverMessage{Type: "error", Message: "invalid JSON"})
				continue
			}
			if err := sock.handle(ctx, m); err != nil {
				_ = writeJSON(serverMessage{Type: "error", Message: err.Error()})
			}
		}

		close(done)
		sock.close()
		sock.log.Info("map session closed")
	}
}
