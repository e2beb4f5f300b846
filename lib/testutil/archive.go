// Copyright 2026 The Multipass Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// BlueprintArchive builds an in-memory blueprint archive: a tar of
// "v1/<name>.yaml" entries compressed with the algorithm implied by
// extension (".tar.zst" or ".tar.lz4"). Entries whose name already
// contains a slash or a dot are stored verbatim, letting tests place
// documents outside v1/ or with odd extensions.
func BlueprintArchive(t *testing.T, extension string, documents map[string]string) []byte {
	t.Helper()

	var tarBuffer bytes.Buffer
	tarWriter := tar.NewWriter(&tarBuffer)
	for name, content := range documents {
		entryName := name
		if !strings.ContainsAny(name, "/.") {
			entryName = "v1/" + name + ".yaml"
		}
		header := &tar.Header{
			Name: entryName,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("writing tar header for %s: %v", entryName, err)
		}
		if _, err := tarWriter.Write([]byte(content)); err != nil {
			t.Fatalf("writing tar entry %s: %v", entryName, err)
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}

	var compressed bytes.Buffer
	var compressor io.WriteCloser
	switch extension {
	case ".tar.zst":
		writer, err := zstd.NewWriter(&compressed)
		if err != nil {
			t.Fatalf("creating zstd writer: %v", err)
		}
		compressor = writer
	case ".tar.lz4":
		compressor = lz4.NewWriter(&compressed)
	default:
		t.Fatalf("unknown archive extension %q", extension)
	}

	if _, err := compressor.Write(tarBuffer.Bytes()); err != nil {
		t.Fatalf("compressing archive: %v", err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}
	return compressed.Bytes()
}
