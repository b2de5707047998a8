package media

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerHost short-circuits calls to a failing media host so requests fail fast
// instead of waiting on the upstream timeout.
type BreakerHost struct {
	next    Host
	uploads *gobreaker.CircuitBreaker[*Asset]
	deletes *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerHost(next Host, name string, maxFailures uint32, openTimeout time.Duration) *BreakerHost {
	settings := func(suffix string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:    name + "_" + suffix,
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}
	}

	return &BreakerHost{
		next:    next,
		uploads: gobreaker.NewCircuitBreaker[*Asset](settings("upload")),
		deletes: gobreaker.NewCircuitBreaker[struct{}](settings("destroy")),
	}
}

func (b *BreakerHost) Upload(ctx context.Context, localPath string) (*Asset, error) {
	return b.uploads.Execute(func() (*Asset, error) {
		return b.next.Upload(ctx, localPath)
	})
}

func (b *BreakerHost) Destroy(ctx context.Context, url string) error {
	_, err := b.deletes.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Destroy(ctx, url)
	})
	return err
}

func (b *BreakerHost) UploadState() gobreaker.State {
	return b.uploads.State()
}
