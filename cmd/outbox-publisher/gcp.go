package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// gcpPublishers adapts the Pub/Sub client to the relay's publisher factory.
func gcpPublishers(src publisherSource) func(topic string) topicPublisher {
	return func(topic string) topicPublisher {
		p := src.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct{ p *gcppubsub.Publisher }

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{g.p.Publish(ctx, msg)}
}

type gcpResult struct{ r *gcppubsub.PublishResult }

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	return g.r.Get(ctx)
}

const jitterWindow = 250 * time.Millisecond

// backoff doubles the wait after each failed batch up to max and adds jitter
// so several relays do not poll in lockstep.
type backoff struct {
	base, max, cur time.Duration
	rng            *rand.Rand
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, cur: base, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *backoff) reset() { b.cur = b.base }

func (b *backoff) idle() time.Duration { return b.jitter(b.base) }

func (b *backoff) failure() time.Duration {
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return b.jitter(b.cur)
}

func (b *backoff) jitter(d time.Duration) time.Duration {
	return d + time.Duration(b.rng.Int63n(int64(jitterWindow)))
}
