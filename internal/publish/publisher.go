// Package publish fans supply samples out to external systems.
package publish

import (
	"context"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// Publisher receives every polled sample.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, s *psu.Sample) error
	Close() error
}
