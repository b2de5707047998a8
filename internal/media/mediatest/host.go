// Package mediatest provides a recording media.Host for tests.
package mediatest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"vidtube-serverless/internal/media"
)

type Host struct {
	mu        sync.Mutex
	Uploaded  []string
	Destroyed []string

	// UploadErr and DestroyErr are returned by every call when set.
	UploadErr  error
	DestroyErr error
	// NilAsset makes Upload succeed without an asset.
	NilAsset bool
}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Upload(_ context.Context, localPath string) (*media.Asset, error) {
	if localPath == "" {
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.UploadErr != nil {
		return nil, h.UploadErr
	}
	if h.NilAsset {
		return nil, nil
	}

	h.Uploaded = append(h.Uploaded, localPath)
	publicID := fmt.Sprintf("asset-%d", len(h.Uploaded))
	return &media.Asset{
		URL:      "https://media.test/" + publicID + filepath.Ext(localPath),
		PublicID: publicID,
	}, nil
}

func (h *Host) Destroy(_ context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DestroyErr != nil {
		return h.DestroyErr
	}
	h.Destroyed = append(h.Destroyed, url)
	return nil
}
