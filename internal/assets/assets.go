// Package assets resolves request paths against the content root and opens
// the files behind them. Every read the gateway performs goes through Resolve,
// so nothing outside the root is ever opened.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"streamgate/internal/services"
)

var (
	// ErrRejected marks a path that would escape the root.
	ErrRejected = fmt.Errorf("%w: path rejected", services.ErrPathTraversal)
	// ErrMissing marks a safe path with no regular file behind it.
	ErrMissing = fmt.Errorf("%w: asset missing", services.ErrNotFound)
)

// Asset is an opened file under the content root. Callers must Close it.
type Asset struct {
	*os.File
	Path string
	Size int64
}

// Resolve joins rel onto root and returns the absolute path. It rejects
// absolute or NUL-carrying input, anything that normalizes outside root, and
// symlinks that point outside root. Rejection does not depend on existence.
func Resolve(root, rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) || strings.ContainsRune(root, 0) {
		return "", ErrRejected
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", ErrRejected
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	target := filepath.Join(absRoot, rel)
	if !within(absRoot, target) {
		return "", ErrRejected
	}

	// Symlink check only applies when the target exists; a missing file
	// cannot be a link.
	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return target, nil
		}
		return "", fmt.Errorf("evaluate %q: %w", rel, err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("evaluate root: %w", err)
	}
	if !within(realRoot, realTarget) {
		return "", ErrRejected
	}
	return target, nil
}

// Open resolves rel and opens the regular file behind it.
func Open(root, rel string) (*Asset, error) {
	path, err := Resolve(root, rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("open asset: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat asset: %w", err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, ErrMissing
	}
	return &Asset{File: file, Path: path, Size: info.Size()}, nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
