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
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solarisdb/fluxcore/golibs/files"
)

// LedgerFileName is the fixed name of the ledger's mapped region file within a buffer's data directory.
const LedgerFileName = "buffer.db"

const (
	ledgerOffTotalRecords   = 0
	ledgerOffTotalBufSize   = 8
	ledgerOffNextWriterID   = 16
	ledgerOffWriterFileID   = 24
	ledgerOffUnackedFileID  = 26
	ledgerOffLastAckedID    = 28
	ledgerRegionSize        = 36
	ledgerMappedSize        = files.BlockSize
)

// Ledger is the small durable structure described in section 4.2: it holds the
// writer and reader's shared bookkeeping (total records, total buffer bytes,
// next writer record ID, writer/reader file IDs, reader's last acked record
// ID) in a page mapped into memory, and the wakeup primitives the writer and
// reader use to signal each other. It is shared between the writer and the
// reader that open the same buffer directory; both hold the same *Ledger
// instance. It keeps no reference count: Close unmaps the region whoever else
// still holds the Ledger.
//
// The only field both sides mutate is totalBufferSize; it is kept as an
// atomic.Int64 shadow in addition to its mapped copy so neither side has to
// take the flush mutex just to read it.
type Ledger struct {
	mmf *files.MMFile
	mu  sync.Mutex // guards serialize/deserialize of the mapped region

	totalRecords    atomic.Int64
	totalBufferSize atomic.Int64
	nextWriterID    atomic.Uint64
	writerFileID    atomic.Uint32 // low 16 bits significant
	unackedFileID   atomic.Uint32 // low 16 bits significant
	lastAckedID     atomic.Uint64

	pendingAcks atomic.Int64

	flushInterval time.Duration
	lastFlushNano atomic.Int64

	writerWake chan struct{}
	readerWake chan struct{}

	writerDone atomic.Bool

	// ackedFileID tracks the highest fully-deleted reader file ID. Unlike the
	// other counters it is not part of the persisted region (section 6's
	// layout has no slot for it): a fully-acked file has already been
	// unlinked from disk, so after a restart the reader has nothing left to
	// replay for it and does not need to recover this value. See DESIGN.md.
	ackedFileID atomic.Uint32
}

// MarkWriterDone records that the writer has been closed. Once
// TotalBufferSize also reaches zero, the reader's read loop returns
// end-of-stream (section 4.4 step 2).
func (l *Ledger) MarkWriterDone() {
	l.writerDone.Store(true)
	l.NotifyReaderWaiters()
}

// IsWriterDone reports whether the writer side has been closed.
func (l *Ledger) IsWriterDone() bool { return l.writerDone.Load() }

// OpenLedger maps dataDir/buffer.db into memory, creating it (with fresh
// zero-valued fields) if it does not already exist.
func OpenLedger(dataDir string, flushInterval time.Duration) (*Ledger, error) {
	path := filepath.Join(dataDir, LedgerFileName)
	fresh, err := ensureLedgerFile(path)
	if err != nil {
		return nil, err
	}
	mmf, err := files.NewMMFile(path, ledgerMappedSize)
	if err != nil {
		return nil, fmt.Errorf("could not map ledger file %s: %w", path, err)
	}
	l := &Ledger{
		mmf:           mmf,
		flushInterval: flushInterval,
		writerWake:    make(chan struct{}, 1),
		readerWake:    make(chan struct{}, 1),
	}
	if fresh {
		// Record IDs start at 1 so a persisted lastAckedID of 0 always means
		// "nothing acked yet" and the reader's restart seek can tell a fresh
		// buffer apart from one whose first record was acknowledged.
		l.nextWriterID.Store(1)
		if err := l.Flush(); err != nil {
			mmf.Close()
			return nil, err
		}
		return l, nil
	}
	if err := l.load(); err != nil {
		mmf.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	buf, err := l.mmf.Buffer(0, ledgerRegionSize)
	if err != nil {
		return fmt.Errorf("could not read ledger region: %w", err)
	}
	l.totalRecords.Store(int64(binary.BigEndian.Uint64(buf[ledgerOffTotalRecords:])))
	l.totalBufferSize.Store(int64(binary.BigEndian.Uint64(buf[ledgerOffTotalBufSize:])))
	l.nextWriterID.Store(binary.BigEndian.Uint64(buf[ledgerOffNextWriterID:]))
	l.writerFileID.Store(uint32(binary.BigEndian.Uint16(buf[ledgerOffWriterFileID:])))
	l.unackedFileID.Store(uint32(binary.BigEndian.Uint16(buf[ledgerOffUnackedFileID:])))
	l.lastAckedID.Store(binary.BigEndian.Uint64(buf[ledgerOffLastAckedID:]))
	return nil
}

// Flush drains the internal bookkeeping into the mapped region and forces it
// to stable storage. Safe to call concurrently; the write itself is
// serialized, but callers typically gate calls with ShouldFlush.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf, err := l.mmf.Buffer(0, ledgerRegionSize)
	if err != nil {
		return fmt.Errorf("could not map ledger region for flush: %w", err)
	}
	binary.BigEndian.PutUint64(buf[ledgerOffTotalRecords:], uint64(l.totalRecords.Load()))
	binary.BigEndian.PutUint64(buf[ledgerOffTotalBufSize:], uint64(l.totalBufferSize.Load()))
	binary.BigEndian.PutUint64(buf[ledgerOffNextWriterID:], l.nextWriterID.Load())
	binary.BigEndian.PutUint16(buf[ledgerOffWriterFileID:], uint16(l.writerFileID.Load()))
	binary.BigEndian.PutUint16(buf[ledgerOffUnackedFileID:], uint16(l.unackedFileID.Load()))
	binary.BigEndian.PutUint64(buf[ledgerOffLastAckedID:], l.lastAckedID.Load())
	if err := l.mmf.Flush(); err != nil {
		return fmt.Errorf("could not fsync ledger region: %w", err)
	}
	l.lastFlushNano.Store(time.Now().UnixNano())
	return nil
}

// Close unmaps the ledger's region. Callers must Flush before Close if the
// latest state needs to survive.
func (l *Ledger) Close() error {
	return l.mmf.Close()
}

// AcquireNextWriterRecordID atomically hands out the next record ID and
// advances the counter (with 64-bit wraparound).
func (l *Ledger) AcquireNextWriterRecordID() uint64 {
	return l.nextWriterID.Add(1) - 1
}

// SetNextWriterRecordID overwrites the next record ID to be handed out. Used
// by tests to exercise 64-bit wraparound; production code never needs it.
func (l *Ledger) SetNextWriterRecordID(id uint64) { l.nextWriterID.Store(id) }

// SetFileIDs overwrites the writer and reader file IDs. Used by tests to
// exercise 16-bit file-ID wraparound; production code never needs it. Must be
// called before the Writer and Reader are constructed.
func (l *Ledger) SetFileIDs(writer, reader uint16) {
	l.writerFileID.Store(uint32(writer))
	l.unackedFileID.Store(uint32(reader))
	l.ackedFileID.Store(uint32(reader))
}

// TotalRecords returns the ledger's running count of records ever written.
// Per the open question in section 9, this counter is informational only;
// end-of-stream detection must use TotalBufferSize, not this value.
func (l *Ledger) TotalRecords() int64 { return l.totalRecords.Load() }

// IncrementTotalRecords bumps the total-records counter on a successful write.
func (l *Ledger) IncrementTotalRecords() { l.totalRecords.Add(1) }

// TotalBufferSize returns the current occupied buffer size in bytes. This is
// the single field both writer and reader mutate.
func (l *Ledger) TotalBufferSize() int64 { return l.totalBufferSize.Load() }

// AddTotalBufferSize adjusts the shared buffer-size counter by delta (which
// may be negative, e.g. when a deletion marker discovers an unread tail).
func (l *Ledger) AddTotalBufferSize(delta int64) int64 {
	return l.totalBufferSize.Add(delta)
}

// WriterFileID returns the file ID the writer currently appends to.
func (l *Ledger) WriterFileID() uint16 { return uint16(l.writerFileID.Load()) }

// IncrementWriterFileID rolls the writer's current file ID forward (with
// 16-bit wraparound) and returns the new value.
func (l *Ledger) IncrementWriterFileID() uint16 {
	return uint16(l.writerFileID.Add(1))
}

// UnackedReaderFileID returns the file ID the reader is currently consuming
// (i.e. the reader's read cursor's file, regardless of acknowledgement).
func (l *Ledger) UnackedReaderFileID() uint16 { return uint16(l.unackedFileID.Load()) }

// IncrementUnackedReaderFileID advances the reader's cursor file ID (with
// wraparound) and returns the new value.
func (l *Ledger) IncrementUnackedReaderFileID() uint16 {
	return uint16(l.unackedFileID.Add(1))
}

// AckedReaderFileID returns the highest reader file ID that has been fully
// acknowledged and deleted so far (in-memory only; see ackedFileID).
func (l *Ledger) AckedReaderFileID() uint16 { return uint16(l.ackedFileID.Load()) }

// IncrementAckedReaderFileID advances the acked-file-ID watermark (with
// wraparound) after a data file has been deleted.
func (l *Ledger) IncrementAckedReaderFileID() uint16 {
	return uint16(l.ackedFileID.Add(1))
}

// LastAckedRecordID returns the highest record ID the reader has
// acknowledged so far.
func (l *Ledger) LastAckedRecordID() uint64 { return l.lastAckedID.Load() }

// SetLastAckedRecordID overwrites the last-acked record ID. Used both for
// real acknowledgement advancement and for delayed-ack cascades.
func (l *Ledger) SetLastAckedRecordID(id uint64) { l.lastAckedID.Store(id) }

// ConsumePendingAcks atomically drains and returns the externally fed
// acknowledgement count accumulated since the last call.
func (l *Ledger) ConsumePendingAcks() int {
	return int(l.pendingAcks.Swap(0))
}

// FeedAck is called by the downstream consumer to report n additional
// records processed and safe to acknowledge.
func (l *Ledger) FeedAck(n int) {
	if n > 0 {
		l.pendingAcks.Add(int64(n))
	}
}

// ShouldFlush reports true at most once per flush interval across
// concurrently racing callers, via compare-and-swap on the last-flush
// timestamp.
func (l *Ledger) ShouldFlush() bool {
	if l.flushInterval <= 0 {
		return true
	}
	now := time.Now().UnixNano()
	last := l.lastFlushNano.Load()
	if now-last < l.flushInterval.Nanoseconds() {
		return false
	}
	return l.lastFlushNano.CompareAndSwap(last, now)
}

// NotifyReaderWaiters wakes a reader blocked in WaitForWriter.
func (l *Ledger) NotifyReaderWaiters() {
	select {
	case l.readerWake <- struct{}{}:
	default:
	}
}

// NotifyWriterWaiters wakes a writer blocked in WaitForReader.
func (l *Ledger) NotifyWriterWaiters() {
	select {
	case l.writerWake <- struct{}{}:
	default:
	}
}

// WaitForReader blocks the writer until the reader makes progress (or the
// context is done). Wakeups may be spurious; callers must re-check state.
func (l *Ledger) WaitForReader(done <-chan struct{}) {
	select {
	case <-l.writerWake:
	case <-done:
	}
}

// WaitForWriter blocks the reader until the writer makes progress (or the
// context is done). Wakeups may be spurious; callers must re-check state.
func (l *Ledger) WaitForWriter(done <-chan struct{}) {
	select {
	case <-l.readerWake:
	case <-done:
	}
}

func ensureLedgerFile(path string) (fresh bool, err error) {
	if err := files.EnsureDirExists(filepath.Dir(path)); err != nil {
		return false, err
	}
	exists, err := files.Exists(path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := files.CreateEmptyFile(path, ledgerMappedSize); err != nil {
		return false, fmt.Errorf("could not create ledger file %s: %w", path, err)
	}
	return true, nil
}
