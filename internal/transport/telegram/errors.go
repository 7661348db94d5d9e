package telegram

import (
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "predictbot/internal/transport"
)

// classifyErr maps telebot errors onto the transport taxonomy so callers can
// branch without importing telebot.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		wait := time.Duration(flood.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		return &kit.RateLimitedError{RetryAfter: wait}
	}

	var te *tele.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 403:
			return fmt.Errorf("%w: %s", kit.ErrForbidden, te.Description)
		case 400:
			return fmt.Errorf("%w: %s", kit.ErrBadRequest, te.Description)
		case 429:
			return &kit.RateLimitedError{RetryAfter: time.Second}
		}
	}
	return err
}
