// Package uploader defines the attachment upload boundary. Only the
// success/failure outcome matters to the sync core; transport mechanics live
// behind the interface.
package uploader

import "context"

// File is a local file handed to the uploader.
type File struct {
	Name string
	Kind string // image, video, audio, document
	Path string
	Data []byte
}

// Descriptor is the stored-object descriptor returned by a successful upload.
type Descriptor struct {
	URL       string
	Filename  string
	Size      int64
	Thumbnail string
}

// Uploader stores a file and returns its descriptor, or fails.
type Uploader interface {
	Upload(ctx context.Context, f File) (Descriptor, error)
}
