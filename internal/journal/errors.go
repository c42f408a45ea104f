package journal

import "errors"

// ErrClosed is returned by queries after Close.
var ErrClosed = errors.New("journal: closed")
