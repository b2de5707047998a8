package media

import "context"

// Asset is an object stored on the media host.
type Asset struct {
	URL      string
	PublicID string
}

// Host stores staged local files and serves them from a public URL.
type Host interface {
	// Upload returns nil, nil for an empty path.
	Upload(ctx context.Context, localPath string) (*Asset, error)
	Destroy(ctx context.Context, url string) error
}
