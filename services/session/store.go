package session

import (
	"context"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
)

// Store holds pending handshakes.
//
// Consume must remove and return the entry in one step, so that of two
// concurrent callers at most one receives it. A missing key returns
// services.ErrUnknownSession.
type Store interface {
	Save(ctx context.Context, handshake *models.Handshake) error
	Consume(ctx context.Context, key string) (*models.Handshake, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
