// Package storage defines the contract for off-box backup object storage.
package storage

import (
	"context"
	"errors"
)

var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// ObjectStorage stores backup artifacts off-box. Keys are relative to the
// configured bucket prefix. Put encrypts objects at rest.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object contents, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List enumerates object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	Delete(ctx context.Context, key string) error
}
