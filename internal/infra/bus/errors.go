package bus

import (
	"errors"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/engine"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, engine.ErrOverrideQueueFull):
		return "queue_full"
	case errors.Is(err, engine.ErrStopped):
		return "unavailable"
	default:
		return "internal"
	}
}
