// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

const (
	// BackendMemory keeps artifacts in process memory.
	BackendMemory = "memory"
	// BackendFilesystem keeps artifacts under a local directory.
	BackendFilesystem = "filesystem"
	// BackendS3 keeps artifacts in an S3 compatible bucket.
	BackendS3 = "s3"
)

// BillyBackend stores artifacts on a billy filesystem.
type BillyBackend struct {
	name string
	fs   billy.Filesystem

	// memfs is not safe for concurrent mutation; osfs leaves it to the OS.
	mu     sync.RWMutex
	locked bool
}

// NewMemoryBackend creates a backend over an in-memory filesystem.
func NewMemoryBackend() *BillyBackend {
	return &BillyBackend{name: BackendMemory, fs: memfs.New(), locked: true}
}

// NewFilesystemBackend creates a backend rooted at root. Paths cannot
// escape root, symlinks included.
func NewFilesystemBackend(root string) (*BillyBackend, error) {
	if root == "" {
		return nil, stderrors.New("filesystem root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &BillyBackend{name: BackendFilesystem, fs: osfs.New(root, osfs.WithBoundOS())}, nil
}

func (b *BillyBackend) lock() func() {
	if !b.locked {
		return func() {}
	}
	b.mu.Lock()
	return b.mu.Unlock
}

func (b *BillyBackend) rlock() func() {
	if !b.locked {
		return func() {}
	}
	b.mu.RLock()
	return b.mu.RUnlock
}

// Name returns the backend name.
func (b *BillyBackend) Name() string {
	return b.name
}

// Put writes data to key, creating parent directories.
func (b *BillyBackend) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return b.err("put", key, err)
	}
	defer b.lock()()

	if err := b.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return b.err("mkdir", key, err)
	}
	if err := util.WriteFile(b.fs, key, data, 0o640); err != nil {
		return b.err("write", key, err)
	}
	return nil
}

// Get reads key.
func (b *BillyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, b.err("read", key, err)
	}
	defer b.rlock()()

	data, err := util.ReadFile(b.fs, key)
	if err != nil {
		return nil, b.err("read", key, err)
	}
	return data, nil
}

// Delete removes key.
func (b *BillyBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return b.err("delete", key, err)
	}
	defer b.lock()()

	if err := b.fs.Remove(key); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return b.err("delete", key, err)
	}
	return nil
}

// List walks every file under prefix.
func (b *BillyBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, b.err("list", prefix, err)
	}
	defer b.rlock()()

	var objects []ObjectInfo
	err := util.Walk(b.fs, path.Clean(prefix), func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			objects = append(objects, ObjectInfo{Key: p, ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, b.err("list", prefix, err)
	}
	return objects, nil
}

// err maps a filesystem error onto the error taxonomy. Missing files are
// not_found; everything else, a cancelled context included, means the
// backend could not serve the call.
func (b *BillyBackend) err(op, key string, err error) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewNotFoundError(fmt.Sprintf("object %q not found", key), nil)
	}
	return errors.NewStoreUnavailableError(fmt.Sprintf("%s %s %q failed", b.name, op, key), err)
}

// Compile-time interface check.
var _ Backend = (*BillyBackend)(nil)
