package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmxfleet/alert-relay/internal/models"
)

// RedisFeed implements Feed over Redis pub/sub. Every insert is
// published on the broadcast channel and on a per-device channel, so a
// Filter maps directly to a channel name.
type RedisFeed struct {
	client         *redis.Client
	prefix         string
	receiveTimeout time.Duration
}

func NewRedisFeed(client *redis.Client, prefix string, receiveTimeout time.Duration) *RedisFeed {
	return &RedisFeed{
		client:         client,
		prefix:         prefix,
		receiveTimeout: receiveTimeout,
	}
}

func (f *RedisFeed) channelFor(filter *Filter) string {
	if filter == nil || filter.DeviceID == "" {
		return f.prefix
	}
	return fmt.Sprintf("%s:device:%s", f.prefix, filter.DeviceID)
}

func (f *RedisFeed) Subscribe(ctx context.Context, filter *Filter) (Subscription, error) {
	channel := f.channelFor(filter)
	ps := f.client.Subscribe(ctx, channel)

	// Confirm the subscription before handing it out; a refused
	// subscribe is an error here, not a status signal.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		ps:      ps,
		channel: channel,
		events:  make(chan *models.AlertEvent, 64),
		status:  make(chan Status, 4),
		done:    make(chan struct{}),
	}
	sub.emit(StatusSubscribed)
	go sub.run(f.receiveTimeout)

	return sub, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	channel   string
	events    chan *models.AlertEvent
	status    chan Status
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Events() <-chan *models.AlertEvent {
	return s.events
}

func (s *redisSubscription) Status() <-chan Status {
	return s.status
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.ps.Close()
}

func (s *redisSubscription) run(timeout time.Duration) {
	for {
		msg, err := s.ps.ReceiveTimeout(context.Background(), timeout)
		select {
		case <-s.done:
			return
		default:
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.emit(StatusTimedOut)
			} else {
				slog.Debug("feed receive failed", "channel", s.channel, "error", err)
				s.emit(StatusError)
			}
			return
		}

		switch m := msg.(type) {
		case *redis.Message:
			var ev models.AlertEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				slog.Warn("dropping malformed feed payload", "channel", s.channel, "error", err)
				continue
			}
			select {
			case s.events <- &ev:
			case <-s.done:
				return
			}
		case *redis.Subscription, *redis.Pong:
			// control traffic
		}
	}
}

func (s *redisSubscription) emit(st Status) {
	select {
	case s.status <- st:
	default:
	}
}

// Publisher is the insert side of the feed, used by the ingest endpoint
// and by tests. Both channels are written in one pipeline so a device
// subscriber and a broadcast subscriber see the same insert.
type Publisher struct {
	client *redis.Client
	prefix string
}

func NewPublisher(client *redis.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) Publish(ctx context.Context, ev *models.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.prefix, payload)
	pipe.Publish(ctx, fmt.Sprintf("%s:device:%s", p.prefix, ev.DeviceID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing event %s: %w", ev.ID, err)
	}
	return nil
}
