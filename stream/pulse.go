package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// pulseClient is the subset of goa.design/pulse's streaming API the
// publisher needs, mirrored directly from the teacher's stream/pulse client
// wrapper so call sites stay testable behind a narrow interface.
type pulseClient interface {
	Stream(name string, opts ...streamopts.Stream) (pulseStream, error)
}

type pulseStream interface {
	Add(ctx context.Context, name string, payload []byte) (string, error)
}

type redisPulseClient struct {
	rdb *redis.Client
}

// NewRedisPulseClient builds a Pulse-backed client over an existing Redis
// connection, for use with NewPulsePublisher.
func NewRedisPulseClient(rdb *redis.Client) pulseClient {
	return &redisPulseClient{rdb: rdb}
}

func (c *redisPulseClient) Stream(name string, opts ...streamopts.Stream) (pulseStream, error) {
	s, err := streaming.NewStream(name, c.rdb, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// pulsePublisher publishes progress events onto a Pulse stream named after
// the request id, giving the RequestCoordinator a cross-process progress
// bus for horizontally scaled deployments and nested sub-pathway requests
// (§0 ambient/domain stack). Local Subscribe is still served from an
// in-process fan-out so a single process can observe its own publishes
// immediately without round-tripping through Redis.
type pulsePublisher struct {
	client pulseClient
	local  *inProcessPublisher
}

// NewPulsePublisher constructs a Publisher that mirrors every event onto a
// Pulse stream (best effort) while still serving local Subscribe calls
// in-process.
func NewPulsePublisher(client pulseClient) Publisher {
	return &pulsePublisher{client: client, local: &inProcessPublisher{subs: make(map[string][]chan ProgressEvent)}}
}

func (p *pulsePublisher) Publish(ctx context.Context, evt ProgressEvent) error {
	p.mirror(ctx, evt)
	return p.local.Publish(ctx, evt)
}

func (p *pulsePublisher) PublishTerminal(ctx context.Context, evt ProgressEvent) error {
	p.mirror(ctx, evt)
	return p.local.PublishTerminal(ctx, evt)
}

func (p *pulsePublisher) Subscribe(requestID string) (<-chan ProgressEvent, func()) {
	return p.local.Subscribe(requestID)
}

func (p *pulsePublisher) mirror(ctx context.Context, evt ProgressEvent) {
	if p.client == nil {
		return
	}
	s, err := p.client.Stream(fmt.Sprintf("request/%s", evt.RequestID))
	if err != nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	_, _ = s.Add(ctx, "progress", payload)
}
