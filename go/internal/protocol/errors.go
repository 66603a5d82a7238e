package protocol

import "errors"

// ErrMalformedMessage is returned for push frames that cannot be decoded or
// routed. Such frames are dropped by the receiver.
var ErrMalformedMessage = errors.New("malformed message")

// ErrTransportUnusable means the push channel is not open. Callers fall back
// to a request/response exchange; it is never shown to the user.
var ErrTransportUnusable = errors.New("push channel unusable")
