package server

import "time"

// Configuration keys read by New and Start.
const (
	KeyPort         = "server.port"
	KeyHost         = "server.host"
	KeyReadTimeout  = "server.readTimeout"
	KeyWriteTimeout = "server.writeTimeout"
	KeyIdleTimeout  = "server.idleTimeout"
	KeyBodyLimit    = "server.bodyLimit"
)

const (
	// DefaultPort is used when server.port is not configured.
	DefaultPort = "3000"

	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 60 * time.Second

	// DefaultBodyLimit caps request bodies accepted by the server.
	DefaultBodyLimit = "10M"

	// maxLoggedBody is the largest JSON request body copied into request records.
	maxLoggedBody = 64 << 10
)
