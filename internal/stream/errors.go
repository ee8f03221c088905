package stream

import "errors"

// ErrClosed indicates the client has been torn down; a closed client
// never reconnects.
var ErrClosed = errors.New("stream: client closed")
