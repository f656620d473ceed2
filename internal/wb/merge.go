package wb

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MergeArchives combines downloaded export archives into a single zip in
// destDir. Each source archive's files land under a subfolder named for
// that archive with the "<uniqueID>-" prefix stripped, so
// "123-Week-SegmentA.zip" contributes "Week-SegmentA/...". Successfully
// merged source archives are deleted; damaged ones are skipped and kept.
func MergeArchives(zipFiles []string, uniqueID int64, destDir string) (string, error) {
	if len(zipFiles) == 0 {
		return "", fmt.Errorf("no files to merge")
	}

	slog.Info("merging archives", "count", len(zipFiles), "unique_id", uniqueID)

	mergedPath := filepath.Join(destDir, fmt.Sprintf("%d-merged.zip", uniqueID))
	out, err := os.Create(mergedPath)
	if err != nil {
		return "", fmt.Errorf("create merged archive: %w", err)
	}

	zw := zip.NewWriter(out)
	prefix := fmt.Sprintf("%d-", uniqueID)

	merged := make([]string, 0, len(zipFiles))
	for _, zipPath := range zipFiles {
		folderName := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
		folderName = strings.TrimPrefix(folderName, prefix)

		if err := appendArchive(zw, zipPath, folderName); err != nil {
			// A damaged source archive is skipped, not fatal. It is also
			// kept on disk so it can be inspected later.
			slog.Error("error processing archive", "path", zipPath, "err", err)
			continue
		}
		merged = append(merged, zipPath)
		slog.Info("archive merged", "source", filepath.Base(zipPath), "folder", folderName)
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return "", fmt.Errorf("finalize merged archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close merged archive: %w", err)
	}

	for _, zipPath := range merged {
		if err := os.Remove(zipPath); err != nil {
			slog.Warn("error deleting source archive", "path", zipPath, "err", err)
		}
	}

	slog.Info("merged archive created", "path", mergedPath)
	return mergedPath, nil
}

func appendArchive(zw *zip.Writer, zipPath, folderName string) error {
	src, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open source archive: %w", err)
	}
	defer src.Close()

	for _, f := range src.File {
		if f.FileInfo().IsDir() {
			continue
		}

		r, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s in %s: %w", f.Name, zipPath, err)
		}

		w, err := zw.Create(path.Join(folderName, f.Name))
		if err != nil {
			r.Close()
			return fmt.Errorf("create %s in merged archive: %w", f.Name, err)
		}

		if _, err := io.Copy(w, r); err != nil {
			r.Close()
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
		r.Close()
	}

	return nil
}
