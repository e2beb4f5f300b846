// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// archiveVersionDir is the directory inside the archive holding the
// current document format. Entries elsewhere are ignored, which lets
// the publisher ship newer formats in the same archive without
// breaking older engines.
const archiveVersionDir = "v1"

// extractResult is what extraction produced: document file paths by
// blueprint name, and whether any entry was rejected (a rejected
// entry marks the cache for refresh, in case the publisher has
// already fixed it).
type extractResult struct {
	documents map[string]string
	rejected  bool
}

// extractArchive unpacks the blueprint documents of the archive at
// archivePath into workDir. The archive is a tar compressed with the
// algorithm implied by the file extension: zstd for ".zst", lz4 for
// ".lz4". Only "v1/<name>.yaml" (or .yml) entries whose base name is
// a legal host name are extracted; illegal names are logged and
// skipped without failing the rest of the archive.
func extractArchive(archivePath, workDir string, logger *slog.Logger) (extractResult, error) {
	result := extractResult{documents: make(map[string]string)}

	file, err := os.Open(archivePath)
	if err != nil {
		return result, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	decompressed, closeDecompressor, err := decompressor(archivePath, file)
	if err != nil {
		return result, err
	}
	defer closeDecompressor()

	reader := tar.NewReader(decompressed)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, &MalformedArchiveError{Err: err}
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name, ok := documentName(header.Name)
		if !ok {
			continue
		}
		if !validName(name) {
			logger.Error("invalid blueprint name: must be a valid host name",
				"name", name,
			)
			result.rejected = true
			continue
		}

		destination := filepath.Join(workDir, name+".yaml")
		if err := writeDocument(destination, reader); err != nil {
			return result, err
		}
		result.documents[name] = destination
	}

	return result, nil
}

// decompressor wraps the archive stream with the codec implied by the
// path's extension.
func decompressor(path string, raw io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		reader, err := zstd.NewReader(raw)
		if err != nil {
			return nil, nil, &MalformedArchiveError{Err: err}
		}
		return reader, reader.Close, nil
	case strings.HasSuffix(path, ".lz4"):
		return lz4.NewReader(raw), func() {}, nil
	default:
		return nil, nil, &MalformedArchiveError{Err: fmt.Errorf("unsupported archive format %q", filepath.Ext(path))}
	}
}

// documentName extracts the blueprint name from an archive entry
// path, or reports that the entry is not a current-format document.
func documentName(entryPath string) (string, bool) {
	directory, base := filepath.Split(filepath.Clean(entryPath))
	if filepath.Base(filepath.Clean(directory)) != archiveVersionDir {
		return "", false
	}
	extension := filepath.Ext(base)
	if extension != ".yaml" && extension != ".yml" {
		return "", false
	}
	return strings.TrimSuffix(base, extension), true
}

func writeDocument(path string, content io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("extracting document: %w", err)
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return fmt.Errorf("extracting document %s: %w", filepath.Base(path), err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("extracting document %s: %w", filepath.Base(path), err)
	}
	return nil
}

// archiveDigest computes the BLAKE3 digest of the archive file. The
// provider compares digests across refreshes to skip re-extracting an
// unchanged archive.
func archiveDigest(path string) ([32]byte, error) {
	var digest [32]byte

	file, err := os.Open(path)
	if err != nil {
		return digest, fmt.Errorf("opening archive for hashing: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return digest, fmt.Errorf("hashing archive: %w", err)
	}
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}
