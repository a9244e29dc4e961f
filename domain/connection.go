// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

// ConnectionID identifies one live transport session. It is opaque to the
// domain; the gateway mints one per accepted socket.
type ConnectionID string
