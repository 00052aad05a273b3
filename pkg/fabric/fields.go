package fabric

import "go.uber.org/zap"

// ChannelField, StreamIDField, SessionIDField, and SourceField are the
// structured log fields every layer above the fabric contract attaches when
// logging about a publication or image, so a channel/streamId/sessionId
// tuple reads the same way in pkg/fabric, pkg/handshake, and pkg/rpcglue
// logs instead of each call site spelling the key string itself.

func ChannelField(channel string) zap.Field {
	return zap.String("channel", channel)
}

func StreamIDField(streamID int32) zap.Field {
	return zap.Int32("streamId", streamID)
}

func SessionIDField(sessionID int32) zap.Field {
	return zap.Int32("sessionId", sessionID)
}

func SourceField(identity string) zap.Field {
	return zap.String("source", identity)
}
