// Package store provides the blob object store used for job orders.
// Objects are opaque byte slices addressed by slash separated keys and listed by key prefix.
// Backends share one contract: writes reject existing keys unless overwrite is requested,
// reads and deletes of missing keys return ErrNotFound.
package store
