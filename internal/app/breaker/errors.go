package breaker

import "errors"

// ErrOpen is returned by Execute when the breaker currently refuses calls
// (Open and cooling down, or HalfOpen with a probe already in flight).
var ErrOpen = errors.New("circuit breaker open")
