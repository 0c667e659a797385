package storage

import (
	"context"
	"net/http"

	"reelmill/internal/controlplane"
)

// PlaneUploader is the slice of the control-plane client used for uploads.
type PlaneUploader interface {
	Upload(ctx context.Context, objectPath, localPath, contentType string) (controlplane.UploadResponse, error)
}

// PlaneBackend stores artifacts through the control plane's upload endpoint.
type PlaneBackend struct {
	plane  PlaneUploader
	client *http.Client
}

// NewPlaneBackend returns a backend uploading through plane. A nil client
// uses a default with a generous timeout.
func NewPlaneBackend(plane PlaneUploader, client *http.Client) *PlaneBackend {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &PlaneBackend{plane: plane, client: client}
}

func (b *PlaneBackend) Put(ctx context.Context, objectPath, localPath, contentType string) (Object, error) {
	resp, err := b.plane.Upload(ctx, objectPath, localPath, contentType)
	if err != nil {
		return Object{}, err
	}
	return Object{Path: resp.Path, URL: resp.URL}, nil
}

func (b *PlaneBackend) Get(ctx context.Context, obj Object, dest string) error {
	return httpGet(ctx, b.client, obj.URL, dest)
}
