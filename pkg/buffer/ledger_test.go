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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	dir, err := os.MkdirTemp("", "ledger_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l.AcquireNextWriterRecordID(), "record IDs start at 1 on a fresh ledger")

	l.IncrementTotalRecords()
	l.AddTotalBufferSize(123)
	l.IncrementWriterFileID()
	l.IncrementUnackedReaderFileID()
	l.SetLastAckedRecordID(77)
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())

	l2, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { l2.Close() })

	assert.Equal(t, int64(1), l2.TotalRecords())
	assert.Equal(t, int64(123), l2.TotalBufferSize())
	assert.Equal(t, uint64(2), l2.AcquireNextWriterRecordID())
	assert.Equal(t, uint16(1), l2.WriterFileID())
	assert.Equal(t, uint16(1), l2.UnackedReaderFileID())
	assert.Equal(t, uint64(77), l2.LastAckedRecordID())
}

func TestLedger_ShouldFlushRateLimits(t *testing.T) {
	dir, err := os.MkdirTemp("", "ledger_flush_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := OpenLedger(dir, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	// OpenLedger's initial Flush stamps the last-flush time, so nothing
	// should be admitted within the interval.
	for i := 0; i < 10; i++ {
		assert.False(t, l.ShouldFlush())
	}

	l2, err := OpenLedger(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { l2.Close() })
	assert.True(t, l2.ShouldFlush(), "a zero interval always admits a flush")
}

func TestLedger_PendingAcksDrainOnce(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	l.FeedAck(3)
	l.FeedAck(2)
	assert.Equal(t, 5, l.ConsumePendingAcks())
	assert.Equal(t, 0, l.ConsumePendingAcks())

	l.FeedAck(-1) // negative counts are ignored
	assert.Equal(t, 0, l.ConsumePendingAcks())
}

func TestLedger_FileIDWraparound16Bit(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	l.SetFileIDs(^uint16(0), ^uint16(0))
	assert.Equal(t, uint16(0), l.IncrementWriterFileID())
	assert.Equal(t, uint16(0), l.IncrementUnackedReaderFileID())
	assert.Equal(t, uint16(0), l.IncrementAckedReaderFileID())
}

func TestLedger_WriterReaderWakeups(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLedger(dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	done := make(chan struct{})
	woke := make(chan struct{})
	go func() {
		l.WaitForWriter(done)
		close(woke)
	}()
	l.NotifyReaderWaiters()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("reader waiter was not woken")
	}
}
