// Package server exposes discovery results as a WebSocket event feed.
//
// The feed serves JSON events on /events: every host, service and
// device event published by the resolvers is broadcast to all connected
// clients. Slow clients are dropped rather than allowed to stall the
// feed.
package server
