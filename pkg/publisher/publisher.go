package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// IPublisher makes a finished artifact available to claim front-ends
type IPublisher interface {
	// Publish stores data under name and returns where it can be found
	Publish(ctx context.Context, name string, data []byte) (string, error)

	// Remove withdraws a previously published artifact. Removing an artifact
	// that does not exist is not an error.
	Remove(ctx context.Context, name string) error
}

// LocalPublisher writes artifacts into a directory
type LocalPublisher struct {
	dir    string
	logger *zap.Logger
}

func NewLocalPublisher(dir string, logger *zap.Logger) (*LocalPublisher, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &LocalPublisher{dir: dir, logger: logger}, nil
}

// Publish writes to a temporary file and renames it so readers never see a partial artifact
func (lp *LocalPublisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(lp.dir, name)
	tmp, err := os.CreateTemp(lp.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	lp.logger.Sugar().Infow("Published artifact", "path", path, "bytes", len(data))
	return path, nil
}

func (lp *LocalPublisher) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path := filepath.Join(lp.dir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	lp.logger.Sugar().Infow("Removed artifact", "path", path)
	return nil
}

// ValidateName rejects names that would escape the publishing location
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
