// Package blob stores large binary payloads: raw uploads and canonical
// waveforms. Keys are forward-slash paths relative to the backend root.
package blob

import (
	"context"
	"fmt"
	"io"
)

// Store is the blob backend boundary.
type Store interface {
	// Upload writes the reader's contents under key, replacing any
	// existing object.
	Upload(ctx context.Context, key string, r io.Reader) error
	// Download returns a reader for the object. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadKey is where the raw upload for a meeting lives.
func UploadKey(meetingID, ext string) string {
	return fmt.Sprintf("uploads/%s%s", meetingID, ext)
}

// CanonicalKey is where the normalized waveform for a meeting lives.
func CanonicalKey(meetingID string) string {
	return fmt.Sprintf("canonical/%s.wav", meetingID)
}

// ReadAll downloads an object fully into memory.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
