package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/recommender"
)

// FilePaths locates the three model documents.
type FilePaths struct {
	UserToGroup          string
	GroupRecommendations string
	Basic                string
}

// FileStore keeps the models as JSON files. Every file is written to a
// temporary sibling and renamed into place, so a reader sees either the old
// or the new document.
type FileStore struct {
	paths  FilePaths
	codec  *codec
	logger *logrus.Logger
}

func NewFileStore(paths FilePaths, taxonomy *catalog.Taxonomy, logger *logrus.Logger) (*FileStore, error) {
	c, err := newCodec(taxonomy)
	if err != nil {
		return nil, err
	}
	return &FileStore{paths: paths, codec: c, logger: logger}, nil
}

func (s *FileStore) SaveAdvanced(ctx context.Context, model *recommender.Advanced) error {
	userToGroup, groups, err := s.codec.encodeAdvanced(model)
	if err != nil {
		return err
	}

	// Rankings go in place before the assignment that references them. The
	// previous rankings stay in a backup until the assignment is renamed, so a
	// failed assignment write never leaves new rankings next to old groups.
	backup, err := backupFile(ctx, s.paths.GroupRecommendations)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(ctx, s.paths.GroupRecommendations, groups); err != nil {
		removeBackup(backup)
		return err
	}
	if err := writeFileAtomic(ctx, s.paths.UserToGroup, userToGroup); err != nil {
		if restoreErr := restoreBackup(s.paths.GroupRecommendations, backup); restoreErr != nil {
			s.logger.WithError(restoreErr).WithField("path", s.paths.GroupRecommendations).
				Error("Failed to restore previous group recommendations")
			return errors.Join(err, restoreErr)
		}
		return err
	}
	removeBackup(backup)

	s.logger.WithFields(logrus.Fields{
		"user_to_group":         s.paths.UserToGroup,
		"group_recommendations": s.paths.GroupRecommendations,
	}).Info("Advanced model saved")
	return nil
}

func (s *FileStore) LoadAdvanced(ctx context.Context) (*recommender.Advanced, error) {
	userToGroup, err := readFile(ctx, s.paths.UserToGroup)
	if err != nil {
		return nil, err
	}
	groups, err := readFile(ctx, s.paths.GroupRecommendations)
	if err != nil {
		return nil, err
	}
	return s.codec.decodeAdvanced(userToGroup, groups)
}

func (s *FileStore) SaveBasic(ctx context.Context, model *recommender.Basic) error {
	data, err := s.codec.encodeBasic(model)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(ctx, s.paths.Basic, data); err != nil {
		return err
	}

	s.logger.WithField("path", s.paths.Basic).Info("Basic model saved")
	return nil
}

func (s *FileStore) LoadBasic(ctx context.Context) (*recommender.Basic, error) {
	data, err := readFile(ctx, s.paths.Basic)
	if err != nil {
		return nil, err
	}
	return s.codec.decodeBasic(data)
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeFileAtomic(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// backupFile copies path to path+".bak" and returns the backup name, or ""
// when there is nothing to back up.
func backupFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	backup := path + ".bak"
	if err := writeFileAtomic(ctx, backup, data); err != nil {
		return "", err
	}
	return backup, nil
}

// restoreBackup puts the backup back at path. Without a backup the file did
// not exist before, so it is removed.
func restoreBackup(path, backup string) error {
	if backup == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}
	if err := os.Rename(backup, path); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return nil
}

func removeBackup(backup string) {
	if backup != "" {
		os.Remove(backup)
	}
}
