package async

import "errors"

// ErrPanic is returned by a Future whose function panicked.
var ErrPanic = errors.New("async: function panicked")
