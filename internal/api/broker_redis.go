package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
)

type EventBroker interface {
    Subscribe(routeID string) chan SSEEvent
    Unsubscribe(routeID string, ch chan SSEEvent)
    Publish(routeID string, evt SSEEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so every API replica
// sees events published by the others.
type RedisBroker struct {
    rdb  *redis.Client
    log  logrus.FieldLogger
    mu   sync.Mutex
    subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client, log logrus.FieldLogger) *RedisBroker {
    if log == nil { log = logrus.StandardLogger() }
    return &RedisBroker{rdb: rdb, log: log, subs: map[chan SSEEvent]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(routeID string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(routeID))
    // initial consume to ensure subscription
    if _, err := ps.Receive(ctx); err != nil { b.log.WithError(err).Warn("redis subscribe failed") }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        // ps.Channel closes when ps is closed in Unsubscribe
        defer close(ch)
        for msg := range ps.Channel() {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(routeID string, ch chan SSEEvent) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *RedisBroker) Publish(routeID string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    if err := b.rdb.Publish(ctx, b.chanName(routeID), data).Err(); err != nil {
        b.log.WithError(err).WithField("route", routeID).Warn("redis publish failed")
    }
}

func (b *RedisBroker) chanName(routeID string) string { return "route:" + routeID }
