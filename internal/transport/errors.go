package transport

import (
	"errors"
	"fmt"
	"time"
)

// Send failures fall into four classes. The broadcast engine depends only on
// this classification; everything the adapter cannot map stays "other".
var (
	// ErrForbidden: the recipient blocked the bot or the chat is unreachable.
	ErrForbidden = errors.New("transport: forbidden")

	// ErrBadRequest: the request itself is malformed (deleted chat, bad file ref).
	ErrBadRequest = errors.New("transport: bad request")
)

// RateLimitedError reports that the platform asked us to back off.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("transport: rate limited, retry after %s", e.RetryAfter)
}

// RetryAfter extracts the backoff hint from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
