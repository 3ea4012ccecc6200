package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"
	redis "github.com/redis/go-redis/v9"
)

// Redis implements Broker over Redis Pub/Sub so several processes can follow
// one run. Publishing never waits on the network: events go through a queue
// drained by one worker, and are dropped when the queue is full.
type Redis struct {
	rdb    *redis.Client
	prefix string
	log    logr.Logger
	send   func(ctx context.Context, channel string, data []byte) error

	mu     sync.Mutex
	subs   map[chan Event]*redis.PubSub
	closed bool
	queue  chan delivery
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// redisDrainTimeout bounds how long Close waits for queued events.
const redisDrainTimeout = 2 * time.Second

// NewRedis connects to url (redis://...). Channels are named prefix:runID.
func NewRedis(url, prefix string, log logr.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "vrpgoal:moves"
	}
	b := &Redis{rdb: redis.NewClient(opt), prefix: prefix, log: log}
	b.send = func(ctx context.Context, channel string, data []byte) error {
		return b.rdb.Publish(ctx, channel, data).Err()
	}
	return startRedis(b), nil
}

func startRedis(b *Redis) *Redis {
	b.subs = map[chan Event]*redis.PubSub{}
	b.queue = make(chan delivery, 256)
	b.done = make(chan struct{})
	b.ctx, b.cancel = context.WithCancel(context.Background())
	go b.run()
	return b
}

// Ping checks the connection.
func (b *Redis) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *Redis) Subscribe(runID string) chan Event {
	ch := make(chan Event, 64)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Error(err, "Subscribe failed", "run", runID)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.V(4).Info("Dropping malformed event", "run", runID, "err", err)
				continue
			}
			b.mu.Lock()
			if _, live := b.subs[ch]; live {
				select {
				case ch <- evt:
				default:
				}
			}
			b.mu.Unlock()
		}
	}()
	return ch
}

func (b *Redis) Unsubscribe(_ string, ch chan Event) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	if ok {
		close(ch)
	}
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(runID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- delivery{runID: runID, evt: evt}:
	default:
		b.log.V(2).Info("Redis queue full, dropping event", "run", runID, "type", evt.Type)
	}
}

func (b *Redis) run() {
	defer close(b.done)
	for d := range b.queue {
		if b.ctx.Err() != nil {
			continue
		}
		data, err := json.Marshal(d.evt)
		if err != nil {
			b.log.Error(err, "Encode event failed", "run", d.runID)
			continue
		}
		ctx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
		if err := b.send(ctx, b.chanName(d.runID), data); err != nil {
			b.log.V(2).Info("Publish failed", "run", d.runID, "err", err)
		}
		cancel()
	}
}

// Close stops accepting events, gives queued ones a short while to go out,
// then releases every subscription and the client.
func (b *Redis) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	select {
	case <-b.done:
	case <-time.After(redisDrainTimeout):
		b.log.V(2).Info("Dropping undelivered events on close")
	}
	b.cancel()
	<-b.done

	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		close(ch)
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func (b *Redis) chanName(runID string) string { return b.prefix + ":" + runID }
