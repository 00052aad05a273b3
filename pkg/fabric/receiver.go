package fabric

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aeroncap/pkg/idle"
)

// ImageReceiver bridges the fabric's own availability callback — which the
// fabric invokes on its own polling thread, per the Client contract — into a
// plain FIFO an owning goroutine can pop from. Connector and Listener both
// embed one: an inbound image is just "the next thing someone connected to
// us," regardless of which side initiated the handshake.
type ImageReceiver struct {
	log *zap.Logger

	mu       sync.Mutex
	accepted []Image
}

// NewImageReceiver subscribes to (channel, streamID) and returns a receiver
// that queues every image the fabric hands it until Receive drains it.
func NewImageReceiver(log *zap.Logger, client Client, channel string, streamID int32) (*ImageReceiver, error) {
	r := &ImageReceiver{log: log}
	_, err := client.AddSubscription(channel, streamID, r.onAvailable, r.onUnavailable)
	if err != nil {
		return nil, fmt.Errorf("add subscription %s/%d: %w", channel, streamID, err)
	}
	return r, nil
}

func (r *ImageReceiver) onAvailable(img Image) {
	r.mu.Lock()
	r.accepted = append(r.accepted, img)
	r.mu.Unlock()
}

func (r *ImageReceiver) onUnavailable(img Image) {
	if r.log != nil {
		r.log.Debug("image unavailable", SessionIDField(img.SessionID()))
	}
}

// Receive pops the next queued image, idling via idler while none is
// available yet. It returns ctx.Err() or idle.ErrOverloaded if idler gives
// up first.
func (r *ImageReceiver) Receive(ctx context.Context, idler idle.Idler) (Image, error) {
	for {
		if img := r.pop(); img != nil {
			return img, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := idler.Idle(ctx); err != nil {
			return nil, err
		}
	}
}

func (r *ImageReceiver) pop() Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.accepted) == 0 {
		return nil
	}
	img := r.accepted[0]
	r.accepted = r.accepted[1:]
	return img
}
