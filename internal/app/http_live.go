package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"progress/api/internal/dashboard"
	"progress/api/internal/export"
	"progress/api/internal/livequery"
	"progress/api/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxLiveMessage = 4 * 1024
)

func (s *HTTPServer) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  16 * 1024,
		HandshakeTimeout: writeWait,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
		},
	}
}

// liveConn pushes snapshots to one websocket. Only the newest pending
// snapshot is kept; a slow browser skips intermediate ones.
type liveConn struct {
	conn    *websocket.Conn
	pending chan any
}

func newLiveConn(conn *websocket.Conn) *liveConn {
	return &liveConn{conn: conn, pending: make(chan any, 1)}
}

func (c *liveConn) send(payload any) {
	for {
		select {
		case c.pending <- payload:
			return
		default:
		}
		select {
		case <-c.pending:
		default:
		}
	}
}

// serve runs the write pump and blocks in the read loop until the socket
// closes or ctx ends.
func (c *liveConn) serve(ctx context.Context, cancel context.CancelFunc) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
		cancel()
	}()
	c.readPump()
	cancel()
	_ = c.conn.Close()
	wg.Wait()
}

// readPump only keeps the deadline fresh; browsers send nothing we act on.
func (c *liveConn) readPump() {
	c.conn.SetReadLimit(maxLiveMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("live socket closed: %v", err)
			}
			return
		}
	}
}

func (c *liveConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.pending:
			data, err := json.Marshal(payload)
			if err != nil {
				log.Printf("marshal live payload: %v", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func clientsQuery(loader func(context.Context) ([]store.Client, error)) livequery.Query[store.Client] {
	return livequery.Query[store.Client]{
		Collection: store.CollectionClients,
		Load:       loader,
		Less: func(a, b store.Client) bool {
			return a.Date.After(b.Date)
		},
	}
}

func updatesQuery(loader func(context.Context) ([]store.Update, error), filter func(store.Update) bool) livequery.Query[store.Update] {
	return livequery.Query[store.Update]{
		Collection: store.CollectionUpdates,
		Load:       loader,
		Filter:     filter,
		Less: func(a, b store.Update) bool {
			return a.Date.Before(b.Date)
		},
	}
}

// snapshotPair holds the latest result of two live queries and renders once
// both have delivered.
type snapshotPair struct {
	mu          sync.Mutex
	clients     []store.Client
	updates     []store.Update
	haveClients bool
	haveUpdates bool
	render      func(clients []store.Client, updates []store.Update)
}

func (p *snapshotPair) setClients(clients []store.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients, p.haveClients = clients, true
	p.flush()
}

func (p *snapshotPair) setUpdates(updates []store.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates, p.haveUpdates = updates, true
	p.flush()
}

func (p *snapshotPair) flush() {
	if p.haveClients && p.haveUpdates {
		p.render(p.clients, p.updates)
	}
}

// bindPair attaches both queries and serves the socket until it closes.
// Subscriptions are cancelled before returning.
func (s *HTTPServer) bindPair(w http.ResponseWriter, r *http.Request, clients livequery.Query[store.Client], updates livequery.Query[store.Update], render func(*liveConn, []store.Client, []store.Update)) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live upgrade %s: %v", r.URL.Path, err)
		return
	}
	live := newLiveConn(conn)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pair := &snapshotPair{render: func(c []store.Client, u []store.Update) { render(live, c, u) }}
	notifier := s.service.Notifier()

	clientSub, err := livequery.Bind(ctx, notifier, clients, pair.setClients)
	if err != nil {
		log.Printf("live bind clients: %v", err)
		_ = conn.Close()
		return
	}
	defer clientSub.Cancel()

	updateSub, err := livequery.Bind(ctx, notifier, updates, pair.setUpdates)
	if err != nil {
		log.Printf("live bind updates: %v", err)
		_ = conn.Close()
		return
	}
	defer updateSub.Cancel()

	live.serve(ctx, cancel)
}

func (s *HTTPServer) serveDashboardLive(w http.ResponseWriter, r *http.Request) {
	data := s.service.store
	s.bindPair(w, r,
		clientsQuery(data.ListClients),
		updatesQuery(data.ListUpdates, nil),
		func(live *liveConn, clients []store.Client, updates []store.Update) {
			live.send(dashboardJSON(dashboard.Derive(clients, updates)))
		},
	)
}

func (s *HTTPServer) serveClientLive(w http.ResponseWriter, r *http.Request, clientID string) {
	data := s.service.store
	clients := clientsQuery(data.ListClients)
	clients.Filter = func(c store.Client) bool { return c.ID == clientID }
	updates := updatesQuery(data.ListUpdates, func(u store.Update) bool { return u.ClientID == clientID })

	s.bindPair(w, r, clients, updates, func(live *liveConn, clients []store.Client, updates []store.Update) {
		if len(clients) == 0 {
			live.send(map[string]any{"type": "client", "id": clientID, "deleted": true})
			return
		}
		report := export.NewReport(clients[0], dashboard.ClientHistory(clientID, updates), s.service.now())
		live.send(reportJSON(report))
	})
}
