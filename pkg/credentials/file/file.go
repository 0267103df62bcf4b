// Package file provides a file-based credential backend. Each credential is
// stored as its own JSON document under <root>/credentials.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var validName = regexp.MustCompile(`^[a-z0-9_]+$`)

// ErrInvalidName is returned for names that cannot be used as file names.
var ErrInvalidName = errors.New("invalid credential name")

type record struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend implements credentials.Backend on the local file system.
type Backend struct {
	root string
}

// New creates a backend rooted at root. A "file://" prefix is accepted.
func New(root string) *Backend {
	return &Backend{root: strings.Replace(root, "file://", "", 1)}
}

func (b *Backend) dir() string {
	return filepath.Join(b.root, "credentials")
}

func (b *Backend) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(b.dir(), name+".json"), nil
}

func (b *Backend) Get(_ context.Context, name string) (string, bool, error) {
	path, err := b.path(name)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to read credential %s: %w", name, err)
	}

	var rec record

	err = json.Unmarshal(data, &rec)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode credential %s: %w", name, err)
	}

	return rec.Value, true, nil
}

func (b *Backend) Set(_ context.Context, name, value string) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}

	err = os.MkdirAll(b.dir(), 0o700)
	if err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(record{Name: name, Value: value, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential %s: %w", name, err)
	}

	// Write-then-rename keeps a previously stored value intact if the write fails.
	tmp, err := os.CreateTemp(b.dir(), name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write credential %s: %w", name, err)
	}

	err = os.Chmod(tmp.Name(), 0o600)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to store credential %s: %w", name, err)
	}

	return nil
}

func (b *Backend) Delete(_ context.Context, name string) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential %s: %w", name, err)
	}

	return nil
}

// HealthCheck creates the root directory if needed and verifies it is a
// directory.
func (b *Backend) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(b.root, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	info, err := os.Stat(b.root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.root)
	}

	return nil
}

func (b *Backend) Close(_ context.Context) error {
	return nil
}
