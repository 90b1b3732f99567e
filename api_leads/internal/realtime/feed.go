package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/pkg/logging"
	"dopahiyaa/pkg/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type Subscriber interface {
	Subscribe(ctx context.Context, dealerID string, ready chan<- struct{}, handler func(events.FeedItem)) error
}

// Feed streams a dealer's allocated and unlocked leads over a websocket.
type Feed struct {
	sub      Subscriber
	logger   logging.Logger
	upgrader websocket.Upgrader
	open     prometheus.Gauge
	origins  []string
}

func NewFeed(sub Subscriber, logger logging.Logger, open prometheus.Gauge) *Feed {
	f := &Feed{
		sub:    sub,
		logger: logger,
		open:   open,
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     f.checkOrigin,
	}
	return f
}

// AllowOrigins admits browser connections from the listed origins in addition
// to the serving host.
func (f *Feed) AllowOrigins(origins []string) *Feed {
	f.origins = origins
	return f
}

// checkOrigin guards the cookie-authenticated upgrade against cross-site
// pages. Non-browser clients send no Origin and are let through.
func (f *Feed) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return len(f.origins) > 0 && middleware.OriginAllowed(origin, f.origins)
}

// Serve upgrades the request and blocks until the client goes away.
func (f *Feed) Serve(w http.ResponseWriter, r *http.Request, dealerID string) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.WithError(err).Warn("Failed to upgrade dealer feed connection")
		return
	}
	if f.open != nil {
		f.open.Inc()
		defer f.open.Dec()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	log := f.logger.WithField("dealer_id", dealerID)
	send := make(chan []byte, sendBuffer)

	go func() {
		defer cancel()
		err := f.sub.Subscribe(ctx, dealerID, nil, func(item events.FeedItem) {
			payload, err := json.Marshal(item)
			if err != nil {
				return
			}
			select {
			case send <- payload:
			default:
				log.Warn("Dealer feed client too slow, dropping item")
			}
		})
		if err != nil {
			log.WithError(err).Warn("Dealer feed subscription ended")
		}
	}()

	go readPump(conn, cancel)
	writePump(ctx, conn, send)
	_ = conn.Close()
}

// readPump only watches for the client closing; inbound frames are ignored.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
