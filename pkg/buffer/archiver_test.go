// Copyright 2024 The Solaris Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buffer

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisdb/fluxcore/golibs/sss/inmem"
)

func TestReader_ArchivesFinalizedFileBeforeDelete(t *testing.T) {
	payload := make([]byte, 32)
	frame := FramedSize(len(payload))
	_, w, r := newTestBuffer(t, Config{MaxDataFileSize: int64(frame * 2)})

	storage := inmem.NewStorage()
	r.SetArchiver(NewS3Archiver(storage, "/archive/"))

	for i := 0; i < 4; i++ {
		_, err := w.Write(context.Background(), 0, payload)
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())

	for i := 0; i < 3; i++ {
		readAndAck(t, r)
	}
	_, _, err := r.Peek(context.Background())
	require.NoError(t, err)

	exists, err := fileExists(dataFilePath(r.cfg.DataDir, 0))
	require.NoError(t, err)
	assert.False(t, exists, "first data file must be deleted after archival")

	rc, err := storage.Get("/archive/00000.dat")
	require.NoError(t, err)
	defer rc.Close()
	archived, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, frame*2, len(archived), "the archived copy holds both framed records")
}

type failingArchiver struct{ calls int }

func (f *failingArchiver) Archive(path string, fileID uint16) error {
	f.calls++
	return fmt.Errorf("upload rejected for %s", path)
}

func TestReader_ArchiveFailureDoesNotBlockDeletion(t *testing.T) {
	payload := make([]byte, 32)
	frame := FramedSize(len(payload))
	_, w, r := newTestBuffer(t, Config{MaxDataFileSize: int64(frame * 2)})

	fa := &failingArchiver{}
	r.SetArchiver(fa)

	for i := 0; i < 4; i++ {
		_, err := w.Write(context.Background(), 0, payload)
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())

	for i := 0; i < 3; i++ {
		readAndAck(t, r)
	}
	_, _, err := r.Peek(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fa.calls)
	exists, err := fileExists(dataFilePath(r.cfg.DataDir, 0))
	require.NoError(t, err)
	assert.False(t, exists, "deletion must proceed even when archival fails")
}
