package ws

import "errors"

// ErrSessionClosed is returned by Send when the target session is gone
// or was closed because the client could not keep up.
var ErrSessionClosed = errors.New("websocket session closed")
