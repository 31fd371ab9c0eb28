// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes. These give clients a more specific
// reason than the standard close status set.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	ServerFullError     = 3001 // Client table is at capacity; try again later.
)
