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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_DurabilityAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{DataDir: dir, MaxDataFileSize: 1 << 20}

	ledger, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	w, err := NewWriter(cfg, ledger)
	require.NoError(t, err)
	r, err := NewReader(cfg, ledger)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := w.Write(context.Background(), 0, []byte(fmt.Sprintf("record-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())

	// Consume and acknowledge the first two records, then drain the second
	// ack with one more Peek so lastAckedRecordID reflects it.
	for i := 0; i < 2; i++ {
		rec := readAndAck(t, r)
		assert.Equal(t, fmt.Sprintf("record-%d", i), string(rec.Payload))
	}
	_, _, err = r.Peek(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.Flush())
	lastAcked := ledger.LastAckedRecordID()
	require.NoError(t, w.Close())
	require.NoError(t, r.Close())
	require.NoError(t, ledger.Close())

	// Restart: the ledger must come back with lastAcked unchanged and the
	// reader must resume exactly after it.
	ledger2, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { ledger2.Close() })
	assert.Equal(t, lastAcked, ledger2.LastAckedRecordID())

	w2, err := NewWriter(cfg, ledger2)
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	r2, err := NewReader(cfg, ledger2)
	require.NoError(t, err)
	for i := 2; i < 6; i++ {
		rec := readAndAck(t, r2)
		assert.Equal(t, fmt.Sprintf("record-%d", i), string(rec.Payload))
	}
	_, _, err = r2.Peek(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestBuffer_CorruptionSkipWithDelayedAcks(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("sixteen-byte-pay")
	frame := FramedSize(len(payload))
	cfg := Config{DataDir: dir, MaxDataFileSize: int64(frame * 2)}

	ledger, err := OpenLedger(dir, 0)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	w, err := NewWriter(cfg, ledger)
	require.NoError(t, err)

	// Records 1,2 land in file 0; records 3,4 in file 1.
	for i := 0; i < 4; i++ {
		_, err := w.Write(context.Background(), 0, payload)
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())

	// Corrupt record 2's payload in the now-finalized file 0.
	f, err := os.OpenFile(dataFilePath(dir, 0), os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, int64(frame+lengthPrefixSize+bodyHeaderSize))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := NewReader(cfg, ledger)
	require.NoError(t, err)

	rec := readAndAck(t, r)
	assert.Equal(t, uint64(1), rec.ID)

	// The corrupted record surfaces once, then reading resumes on file 1.
	_, _, err = r.Peek(context.Background())
	require.Error(t, err)
	assert.True(t, IsCorruption(err))
	assert.EqualValues(t, 1, r.CorruptionCount())

	rec = readAndAck(t, r)
	assert.Equal(t, uint64(3), rec.ID)
	rec = readAndAck(t, r)
	assert.Equal(t, uint64(4), rec.ID)

	require.NoError(t, w.Close())
	_, _, err = r.Peek(context.Background())
	assert.Equal(t, io.EOF, err)

	exists, err := fileExists(dataFilePath(dir, 0))
	require.NoError(t, err)
	assert.False(t, exists, "file 0 must be deleted once its good records are acked")
	assert.Equal(t, int64(0), ledger.TotalBufferSize())
}

func TestBuffer_FileIDWraparoundLockstep(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("one-record-per-file")
	cfg := Config{DataDir: dir, MaxDataFileSize: int64(FramedSize(len(payload)))}

	ledger, err := OpenLedger(dir, 0)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	ledger.SetFileIDs(^uint16(0)-5, ^uint16(0)-5)

	w, err := NewWriter(cfg, ledger)
	require.NoError(t, err)
	r, err := NewReader(cfg, ledger)
	require.NoError(t, err)

	var prevID uint64
	for i := 0; i < 20; i++ {
		id, err := w.Write(context.Background(), 0, payload)
		require.NoError(t, err)
		if i > 0 {
			assert.Equal(t, prevID+1, id)
		}
		prevID = id

		rec := readAndAck(t, r)
		assert.Equal(t, id, rec.ID)
	}
	// Lockstep keeps the reader on the writer's file across the 16-bit wrap.
	assert.Equal(t, ledger.WriterFileID(), ledger.UnackedReaderFileID())
}

func TestReader_StaleTokenRejected(t *testing.T) {
	_, w, r := newTestBuffer(t, Config{MaxDataFileSize: 1 << 20})

	_, err := w.Write(context.Background(), 0, []byte("a"))
	require.NoError(t, err)
	_, err = w.Write(context.Background(), 0, []byte("b"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	_, tok, err := r.Peek(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Take(tok))

	// The token was consumed; a second Take with it is a contract violation.
	assert.Error(t, r.Take(tok))
}

func TestWriter_RejectsOversizedPayload(t *testing.T) {
	_, w, _ := newTestBuffer(t, Config{MaxDataFileSize: 1 << 20, MaxRecordSize: 8})

	_, err := w.Write(context.Background(), 0, make([]byte, 9))
	assert.Error(t, err)

	_, err = w.Write(context.Background(), 0, make([]byte, 8))
	assert.NoError(t, err)
}

func TestWriter_ClosedWriterRejectsWrites(t *testing.T) {
	_, w, _ := newTestBuffer(t, Config{MaxDataFileSize: 1 << 20})
	require.NoError(t, w.Close())
	_, err := w.Write(context.Background(), 0, []byte("late"))
	assert.Error(t, err)
}
