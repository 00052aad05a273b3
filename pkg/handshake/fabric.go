package handshake

import (
	"context"
	"fmt"

	"aeroncap/pkg/fabric"
	"aeroncap/pkg/idle"
)

// addPublication registers an exclusive publication to (channel, streamID)
// and polls the fabric until it is ready, idling between polls. This is the
// Go shape of the original design's addPublication/findPublication pair,
// which recursed on a promise until aeron.findExclusivePublication stopped
// returning null.
func addPublication(ctx context.Context, client fabric.Client, channel string, streamID int32, idler idle.Idler) (fabric.Publication, error) {
	reg, err := client.AddExclusivePublication(channel, streamID)
	if err != nil {
		return nil, fmt.Errorf("add publication %s/%d: %w", channel, streamID, err)
	}
	for {
		if pub, ok := client.FindExclusivePublication(reg); ok {
			return pub, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := idler.Idle(ctx); err != nil {
			return nil, err
		}
	}
}
