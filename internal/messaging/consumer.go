// Package messaging lets other services control stations over NATS.
//
// Subjects, relative to a configurable prefix:
//
//	<prefix>.station.start    {"brand": "..."}
//	<prefix>.station.stop     {"brand": "..."}
//	<prefix>.fragment.submit  {"brand": "...", "song_id": "...", "key": "...", "priority": 5}
//
// Requests that carry a reply subject get a JSON {"ok": bool, "error": "..."} answer.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hls-radio/internal/radio"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// handleTimeout bounds the work done for a single message.
const handleTimeout = 30 * time.Second

// ErrUnknownSubject is returned by Handle for subjects the consumer does not serve.
var ErrUnknownSubject = errors.New("unknown subject")

// Control is the station API the consumer drives.
type Control interface {
	StartStation(ctx context.Context, brand string) (radio.StationInfo, error)
	StopStation(brand string) bool
	Submit(brand string, song radio.Song, priority int) error
}

// StationRequest is the payload of start and stop messages.
type StationRequest struct {
	Brand string `json:"brand"`
}

// SubmitRequest is the payload of fragment.submit messages.
type SubmitRequest struct {
	Brand    string    `json:"brand"`
	SongID   uuid.UUID `json:"song_id"`
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	Priority int       `json:"priority"`
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Consumer subscribes to the control subjects and forwards them to a Control.
type Consumer struct {
	ctl    Control
	prefix string
	log    *slog.Logger

	conn *nats.Conn
	subs []*nats.Subscription
}

// NewConsumer returns a Consumer for subjects under prefix.
func NewConsumer(ctl Control, prefix string, log *slog.Logger) *Consumer {
	if prefix == "" {
		prefix = "radio"
	}
	return &Consumer{
		ctl:    ctl,
		prefix: prefix,
		log:    log.With(slog.String("component", "nats_consumer")),
	}
}

func (c *Consumer) subjectStart() string  { return c.prefix + ".station.start" }
func (c *Consumer) subjectStop() string   { return c.prefix + ".station.stop" }
func (c *Consumer) subjectSubmit() string { return c.prefix + ".fragment.submit" }

// Connect dials url and subscribes to all control subjects.
func (c *Consumer) Connect(url string) error {
	conn, err := nats.Connect(url,
		nats.Name("hls-radio"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	if err := c.Subscribe(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Subscribe registers the control handlers on an existing connection.
func (c *Consumer) Subscribe(conn *nats.Conn) error {
	c.conn = conn
	for _, subject := range []string{c.subjectStart(), c.subjectStop(), c.subjectSubmit()} {
		sub, err := conn.Subscribe(subject, c.onMessage)
		if err != nil {
			c.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
	}
	c.log.Info("listening for control messages", slog.String("prefix", c.prefix))
	return nil
}

func (c *Consumer) onMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err := c.Handle(ctx, msg.Subject, msg.Data)
	if err != nil {
		c.log.Warn("control message failed",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
	}
	if msg.Reply == "" {
		return
	}
	r := reply{OK: err == nil}
	if err != nil {
		r.Error = err.Error()
	}
	data, _ := json.Marshal(r)
	if err := msg.Respond(data); err != nil {
		c.log.Warn("reply failed", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
	}
}

// Handle decodes one message and applies it.
func (c *Consumer) Handle(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case c.subjectStart():
		var req StationRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		_, err := c.ctl.StartStation(ctx, req.Brand)
		return err

	case c.subjectStop():
		var req StationRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		if !c.ctl.StopStation(req.Brand) {
			return fmt.Errorf("station %q: %w", req.Brand, radio.ErrNotFound)
		}
		return nil

	case c.subjectSubmit():
		var req SubmitRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		if req.Key == "" {
			return fmt.Errorf("submit for %q: missing key", req.Brand)
		}
		id := req.SongID
		if id == uuid.Nil {
			id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("song:"+req.Key))
		}
		song := radio.Song{
			ID:     id,
			Brand:  radio.NormalizeBrand(req.Brand),
			Key:    req.Key,
			Title:  req.Title,
			Artist: req.Artist,
			Type:   radio.ItemSong,
		}
		return c.ctl.Submit(req.Brand, song, req.Priority)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Close unsubscribes and closes the connection opened by Connect.
func (c *Consumer) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
