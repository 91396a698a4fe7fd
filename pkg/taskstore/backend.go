package taskstore

import (
	"context"
	"errors"

	"github.com/harrisonrobin/jarvis/pkg/model"
)

// ErrCorrupt is returned by Backend.Load when the stored document exists but can't
// be decoded. The store recovers from it by starting empty.
var ErrCorrupt = errors.New("stored task collection is malformed")

// Backend persists the whole task collection. Save always receives the complete,
// ordered collection; Load returns it in the same order, or nil when nothing has
// been stored yet.
type Backend interface {
	Load(ctx context.Context) ([]model.Task, error)
	Save(ctx context.Context, tasks []model.Task) error
	Close() error
}
