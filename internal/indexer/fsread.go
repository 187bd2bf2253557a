// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"os"
	"path/filepath"
)

func joinRoot(root, rel string) string {
	return filepath.Join(root, rel)
}

// readFileWithStat reads a file's full contents along with the mtime and
// size to persist on its file record, in one pass so the two values are
// consistent with the bytes actually hashed and trigrammed.
func readFileWithStat(path string) (data []byte, mtimeUnix int64, size int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, 0, err
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, err
	}
	return data, info.ModTime().Unix(), info.Size(), nil
}
