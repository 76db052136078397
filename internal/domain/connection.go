package domain

import "time"

// DefaultKeepAlive is the ping interval used when a connection sets none.
const DefaultKeepAlive = 10 * time.Second

// Connection holds the dial settings of one gRPC target
type Connection struct {
	Address string
	UseTLS  bool

	// Timeout bounds the warm-up after dialing. Zero dials lazily.
	Timeout time.Duration

	// KeepAlive is the idle ping interval. Zero means DefaultKeepAlive.
	KeepAlive time.Duration

	TLS TLSSettings
}

// TLSSettings holds detailed TLS configuration
type TLSSettings struct {
	SkipVerify bool   // Skip TLS certificate verification (insecure)
	ServerName string // Override for SNI and certificate checks
}

// KeepAliveInterval returns KeepAlive or its default.
func (c Connection) KeepAliveInterval() time.Duration {
	if c.KeepAlive > 0 {
		return c.KeepAlive
	}
	return DefaultKeepAlive
}
