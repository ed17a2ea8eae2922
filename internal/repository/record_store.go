// Package repository holds the durable client-side key/value storage that
// keeps the signed-in identity across process restarts.
package repository

import "context"

// RecordStore is a small durable key/value store. Get returns
// model.ErrRecordNotFound for a missing key; Delete of a missing key is not an
// error.
type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
