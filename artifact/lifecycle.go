package artifact

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Archive compresses a feature directory to archive/<id>.tar.gz and
// removes the directory. This is the only way a feature is destroyed.
func (s *Store) Archive(featureID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	featureDir := filepath.Join(s.root, featuresDir, featureID)
	if _, err := os.Stat(featureDir); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFeatureNotFound, featureID)
	}

	dir := filepath.Join(s.root, archiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	archivePath := filepath.Join(dir, featureID+".tar.gz")

	if err := writeArchive(archivePath, featureDir, featureID); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("archive %s: %w", featureID, err)
	}

	if err := os.RemoveAll(featureDir); err != nil {
		return "", fmt.Errorf("remove archived feature: %w", err)
	}
	s.logger.Info("feature archived", "feature", featureID, "archive", archivePath)
	return archivePath, nil
}

// Restore extracts an archived feature back into the features directory.
func (s *Store) Restore(featureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	archivePath := filepath.Join(s.root, archiveDir, featureID+".tar.gz")
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("%w: %s", ErrArchiveNotFound, featureID)
	}

	featureDir := filepath.Join(s.root, featuresDir, featureID)
	if _, err := os.Stat(featureDir); err == nil {
		return fmt.Errorf("feature already exists: %s", featureID)
	}

	if err := extractArchive(archivePath, filepath.Join(s.root, featuresDir)); err != nil {
		return fmt.Errorf("restore %s: %w", featureID, err)
	}
	if err := os.Remove(archivePath); err != nil {
		return err
	}
	s.logger.Info("feature restored", "feature", featureID)
	return nil
}

// ListArchives returns the ids of archived features.
func (s *Store) ListArchives() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, archiveDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tar.gz") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".tar.gz"))
		}
	}
	return ids, nil
}

func writeArchive(archivePath, srcDir, prefix string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	cleanDest := filepath.Clean(destDir) + string(os.PathSeparator)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(filepath.Clean(target)+string(os.PathSeparator), cleanDest) {
			return fmt.Errorf("invalid path in archive: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
