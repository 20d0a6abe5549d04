// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/secure-doc-ai/pipeline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout_CreatesDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := &config.DirectoriesConfig{
		Processing: filepath.Join(root, "processing"),
		Processed:  filepath.Join(root, "processed"),
		Signed:     filepath.Join(root, "signed"),
		Error:      filepath.Join(root, "error"),
		Keys:       filepath.Join(root, "keys"),
	}

	layout, err := NewLayout(cfg)
	require.NoError(t, err)

	for _, dir := range []string{layout.Processing, layout.Processed, layout.Signed, layout.Error, layout.Keys} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLayout_KeyFile(t *testing.T) {
	layout := &Layout{Keys: "/data/keys"}
	assert.Equal(t, "/data/keys/signing_key.pem", layout.KeyFile())
}

func TestUUIDName_PrefixesAndPreservesName(t *testing.T) {
	name := UUIDName("invoice.pdf")
	assert.True(t, strings.HasSuffix(name, "_invoice.pdf"))
	assert.NotEqual(t, "invoice.pdf", name)
}

func TestMoveTo_MovesFileAndReturnsNewPath(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	destDir := filepath.Join(root, "dest")
	require.NoError(t, os.MkdirAll(srcDir, 0o750))
	require.NoError(t, os.MkdirAll(destDir, 0o750))

	srcPath := filepath.Join(srcDir, "doc.pdf")
	require.NoError(t, os.WriteFile(srcPath, []byte("content"), 0o600))

	newPath, err := MoveTo(srcPath, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "doc.pdf"), newPath)

	_, err = os.Stat(srcPath)
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestValidatePath_RejectsNullByte(t *testing.T) {
	err := ValidatePath("foo\x00bar")
	assert.Error(t, err)
}

func TestValidatePath_AcceptsNormalPath(t *testing.T) {
	err := ValidatePath("/tmp/foo/bar.pdf")
	assert.NoError(t, err)
}
