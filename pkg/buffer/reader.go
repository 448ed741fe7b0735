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
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/solarisdb/fluxcore/golibs/container"
	"github.com/solarisdb/fluxcore/golibs/errors"
	"github.com/solarisdb/fluxcore/golibs/files"
	"github.com/solarisdb/fluxcore/golibs/logging"
)

// Token is the opaque handle returned by Peek and consumed by Take (section
// 3: "Read token"). It is valid only until the next Peek call; using a stale
// token is a programmer error.
type Token struct {
	id         uint64
	framedSize int64
	gen        uint64
}

type pendingSize struct {
	id         uint64
	framedSize int64
}

type delayedAckRange struct {
	threshold uint64
	count     int
}

type deletionMarker struct {
	fileID          uint16
	highestRecordID uint64
	lastAckedAtMark uint64
	path            string
	bytesRead       int64
	fileSize        int64
}

// Reader is the single consumer of a buffer instance (C4). It delivers
// records in strict record-ID order, tracks acknowledgements fed back by the
// downstream consumer via FeedAck, and deletes data files once every record
// they hold has been acknowledged.
type Reader struct {
	cfg    Config
	ledger *Ledger
	logger logging.Logger

	mu sync.Mutex

	f         *os.File
	br        *bufio.Reader
	filePos   int64
	curFileID uint16

	lastRecordID     uint64
	haveLastRecordID bool

	pending         []pendingSize
	delayedAcks     []delayedAckRange
	deletionMarkers []deletionMarker

	ready    bool
	gen      uint64
	curTok   *Token
	curRec   *Record

	corruptionCount int64

	archiver Archiver
}

// SetArchiver installs an Archiver that is given each finalized data file
// before it is deleted. It is optional; a nil archiver (the default) simply
// skips the step. Archival failures are logged but never block deletion.
func (r *Reader) SetArchiver(a Archiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archiver = a
}

// NewReader opens a Reader over the same data directory as ledger, replaying
// (without surfacing) whatever records are needed to reposition the file
// cursor at the ledger's last acknowledged record (section 4.4: "Seek on
// restart").
func NewReader(cfg Config, ledger *Ledger) (*Reader, error) {
	cfg = cfg.withDefaults()
	if err := files.EnsureDirExists(cfg.DataDir); err != nil {
		return nil, err
	}
	r := &Reader{
		cfg:       cfg,
		ledger:    ledger,
		logger:    logging.NewLogger("buffer.Reader"),
		curFileID: ledger.UnackedReaderFileID(),
	}
	if err := r.seek(); err != nil {
		return nil, err
	}
	return r, nil
}

// seek replays the current reader file from its start until it reaches the
// ledger's last-acknowledged record, so filePos and lastRecordID reflect
// where real reads should resume. During seek, buffer-size adjustments (were
// any needed) would go directly to the ledger rather than the pending-ack
// list, per the dual-path note in section 9; in practice the replayed region
// is already reflected in the ledger's flushed TotalBufferSize, so seek only
// reconstructs in-memory cursor state.
func (r *Reader) seek() error {
	if r.ledger.TotalRecords() == 0 {
		r.ready = true
		return nil
	}
	target := r.ledger.LastAckedRecordID()
	if target == 0 {
		// Nothing was ever acknowledged (IDs start at 1); reads begin at the
		// start of the current file.
		r.ready = true
		return nil
	}
	path := dataFilePath(r.cfg.DataDir, r.curFileID)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.ready = true
			return nil
		}
		return fmt.Errorf("could not read %s during seek: %w", path, err)
	}
	off := 0
	for off < len(buf) {
		dr := Decode(buf[off:])
		if dr.Status != StatusValid {
			break
		}
		off += dr.Consumed
		r.lastRecordID = dr.Record.ID
		r.haveLastRecordID = true
		if dr.Record.ID == target {
			break
		}
	}
	r.filePos = int64(off)
	r.ready = true
	return nil
}

// FeedAck reports n additional records, in record-ID order, as durably
// processed by the downstream consumer and safe to acknowledge. It wakes a
// Peek blocked on a drained-but-not-yet-acknowledged buffer so the reader can
// observe end-of-stream.
func (r *Reader) FeedAck(n int) {
	r.ledger.FeedAck(n)
	r.ledger.NotifyReaderWaiters()
}

// fileIDBehind reports whether the reader's file ID cur is strictly behind
// writer on the 16-bit file-ID ring.
func fileIDBehind(cur, writer uint16) bool {
	return int16(writer-cur) > 0
}

// CorruptionCount returns the running count of corrupted or torn records the
// reader has skipped over (section 7: "the buffer emits an observable event
// so downstream acknowledgement accounting can remain consistent").
func (r *Reader) CorruptionCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.corruptionCount
}

// Peek decodes (without committing) the next record in ID order and returns
// it with a Token that Take must be called with to advance the reader past
// it. Calling Peek again before Take re-returns the same pending record.
// Peek returns io.EOF once the writer has closed and the buffer has drained.
func (r *Reader) Peek(ctx context.Context) (Record, Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.curRec != nil {
		return *r.curRec, *r.curTok, nil
	}

	r.drainAcksLocked()

	for {
		if r.ledger.IsWriterDone() && r.ledger.TotalBufferSize() == 0 {
			return Record{}, Token{}, io.EOF
		}

		opened, err := r.ensureFileOpenLocked(ctx)
		if err != nil {
			return Record{}, Token{}, err
		}
		if !opened {
			r.drainAcksLocked()
			continue
		}

		rec, consumed, status, err := r.readFrameLocked()
		switch status {
		case readStatusNeedMore:
			r.ledger.WaitForWriter(ctx.Done())
			if cerr := ctx.Err(); cerr != nil {
				return Record{}, Token{}, cerr
			}
			continue
		case readStatusRolled:
			if err != nil {
				// A corrupted or torn region was skipped; the cursor already
				// moved to the next file, so the next Peek resumes normally.
				return Record{}, Token{}, err
			}
			r.drainAcksLocked()
			continue
		case readStatusError:
			return Record{}, Token{}, err
		}

		r.gen++
		if r.haveLastRecordID {
			delta := IDDelta(r.lastRecordID, rec.ID)
			if delta > 1 {
				r.delayedAcks = append(r.delayedAcks, delayedAckRange{threshold: r.lastRecordID, count: int(delta - 1)})
			}
		}
		r.lastRecordID = rec.ID
		r.haveLastRecordID = true

		tok := Token{id: rec.ID, framedSize: consumed, gen: r.gen}
		r.curRec = &rec
		r.curTok = &tok
		return rec, tok, nil
	}
}

// Take commits the record previously returned by Peek, recording its framed
// size so a later FeedAck-driven acknowledgement can account for it. Using a
// token other than the one just returned by Peek is a programmer error.
func (r *Reader) Take(tok Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.curTok == nil || *r.curTok != tok {
		return fmt.Errorf("buffer: stale or unknown read token: %w", errors.ErrInvalid)
	}
	r.pending = append(r.pending, pendingSize{id: tok.id, framedSize: tok.framedSize})
	r.curRec = nil
	r.curTok = nil
	return nil
}

type readStatus int

const (
	readStatusOK readStatus = iota
	readStatusNeedMore
	readStatusRolled
	readStatusError
)

// ensureFileOpenLocked makes sure r.f refers to r.curFileID, opening it if
// necessary. It returns opened=false when the caller should re-evaluate
// state (e.g. after skipping forward past a file that was never created).
func (r *Reader) ensureFileOpenLocked(ctx context.Context) (bool, error) {
	if r.f != nil {
		return true, nil
	}
	for {
		path := dataFilePath(r.cfg.DataDir, r.curFileID)
		exists, err := files.Exists(path)
		if err != nil {
			return false, err
		}
		if exists {
			f, err := os.Open(path)
			if err != nil {
				return false, fmt.Errorf("could not open data file %s: %w", path, err)
			}
			if _, err := f.Seek(r.filePos, io.SeekStart); err != nil {
				f.Close()
				return false, err
			}
			r.f = f
			r.br = bufio.NewReaderSize(f, writerBufSize)
			return true, nil
		}
		if fileIDBehind(r.curFileID, r.ledger.WriterFileID()) {
			// The writer has moved past this file ID without ever creating
			// it (e.g. it was rolled over during startup validation).
			r.curFileID++
			r.filePos = 0
			r.ledger.IncrementUnackedReaderFileID()
			return false, nil
		}
		r.ledger.WaitForWriter(ctx.Done())
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
}

// readFrameLocked attempts to decode one frame from the current position of
// the open file (section 4.4 step 4).
func (r *Reader) readFrameLocked() (Record, int64, readStatus, error) {
	// A file is finalized once the writer has moved past it, or once the
	// writer is closed outright: either way no more bytes will ever land here,
	// so a short or corrupted frame is permanent, not in-flight.
	writerMovedOn := r.curFileID != r.ledger.WriterFileID()
	finalized := writerMovedOn || r.ledger.IsWriterDone()

	hdr := make([]byte, lengthPrefixSize)
	n, err := io.ReadFull(r.br, hdr)
	if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		if writerMovedOn {
			r.rollToNextFileLocked(false)
			return Record{}, 0, readStatusRolled, nil
		}
		// Clean end of the writer's current file. Even when the writer is
		// done this is not a roll: the remaining records just await
		// acknowledgement, and Peek's end-of-stream check owns that case.
		return Record{}, 0, readStatusNeedMore, nil
	}
	if err != nil {
		if finalized {
			r.corruptionCount++
			r.rollToNextFileLocked(true)
			return Record{}, 0, readStatusRolled, &PartialWriteError{Have: n, Want: lengthPrefixSize}
		}
		r.rewindLocked()
		return Record{}, 0, readStatusNeedMore, nil
	}

	bodyLen := binary.BigEndian.Uint64(hdr)
	if bodyLen < bodyHeaderSize+checksumSize || bodyLen > uint64(DefaultMaxRecordSize)+bodyHeaderSize+checksumSize {
		if finalized {
			r.corruptionCount++
			r.rollToNextFileLocked(true)
			return Record{}, 0, readStatusRolled, &DeserializationError{Reason: "implausible body length"}
		}
		r.rewindLocked()
		return Record{}, 0, readStatusNeedMore, nil
	}

	body := make([]byte, int(bodyLen))
	n, err = io.ReadFull(r.br, body)
	if err != nil {
		if finalized {
			r.corruptionCount++
			r.rollToNextFileLocked(true)
			return Record{}, 0, readStatusRolled, &PartialWriteError{Have: n, Want: int(bodyLen)}
		}
		r.rewindLocked()
		return Record{}, 0, readStatusNeedMore, nil
	}

	frame := append(hdr, body...)
	dr := Decode(frame)
	switch dr.Status {
	case StatusValid:
		r.filePos += int64(dr.Consumed)
		return dr.Record, int64(dr.Consumed), readStatusOK, nil
	default:
		if finalized {
			r.corruptionCount++
			r.rollToNextFileLocked(true)
			return Record{}, 0, readStatusRolled, dr.Err
		}
		// A checksum failure on the file the writer is still appending to is
		// not expected in single-writer operation; treat it the same as a
		// transient short read rather than misattributing it to the live
		// file's future writes.
		r.rewindLocked()
		return Record{}, 0, readStatusNeedMore, nil
	}
}

// rewindLocked repositions the open file and its buffered reader back to
// filePos, undoing any bytes speculatively consumed by a read that turned
// out to be short (the frame's writer had not finished appending it yet).
func (r *Reader) rewindLocked() {
	if r.f == nil {
		return
	}
	if _, err := r.f.Seek(r.filePos, io.SeekStart); err != nil {
		r.logger.Warnf("reader: could not rewind to offset %d: %v", r.filePos, err)
		return
	}
	r.br.Reset(r.f)
}

// rollToNextFileLocked enqueues a deletion marker for the current file (once
// it is fully acknowledged) and advances the reader's cursor to the next
// file ID.
func (r *Reader) rollToNextFileLocked(corrupted bool) {
	fi, statErr := r.f.Stat()
	var size int64
	if statErr == nil {
		size = fi.Size()
	}
	r.deletionMarkers = append(r.deletionMarkers, deletionMarker{
		fileID:          r.curFileID,
		highestRecordID: r.lastRecordID,
		lastAckedAtMark: r.ledger.LastAckedRecordID(),
		path:            r.f.Name(),
		bytesRead:       r.filePos,
		fileSize:        size,
	})
	r.f.Close()
	r.f = nil
	r.br = nil
	r.curFileID++
	r.filePos = 0
	r.ledger.IncrementUnackedReaderFileID()
	if corrupted {
		r.logger.Warnf("reader: skipping corrupted/torn region in finalized file, rolling to next file")
	}
}

// drainAcksLocked implements section 4.4 step 1: drain externally-fed
// acknowledgements, cascade any delayed-ack ranges they unblock, then delete
// any data file whose deletion marker has become ready.
func (r *Reader) drainAcksLocked() {
	n := r.ledger.ConsumePendingAcks()
	freed := false
	for i := 0; i < n && len(r.pending) > 0; i++ {
		ps := r.pending[0]
		r.pending = r.pending[1:]
		r.ledger.AddTotalBufferSize(-ps.framedSize)
		r.ledger.SetLastAckedRecordID(ps.id)
		freed = true
	}

	for {
		advanced := false
		for i := 0; i < len(r.delayedAcks); i++ {
			dr := r.delayedAcks[i]
			if !IDAtOrAfter(dr.threshold, r.ledger.LastAckedRecordID()) {
				continue
			}
			// Advance only forward: a batch of acks may already have carried
			// lastAcked past this range's end.
			end := dr.threshold + uint64(dr.count)
			if IDAtOrAfter(r.ledger.LastAckedRecordID(), end) {
				r.ledger.SetLastAckedRecordID(end)
			}
			r.delayedAcks = container.SliceRemoveIdx(r.delayedAcks, i)
			advanced = true
			break
		}
		if !advanced {
			break
		}
	}

	for len(r.deletionMarkers) > 0 {
		m := r.deletionMarkers[0]
		if !IDAtOrAfter(m.highestRecordID, r.ledger.LastAckedRecordID()) {
			break
		}
		if m.fileSize > m.bytesRead {
			r.ledger.AddTotalBufferSize(-(m.fileSize - m.bytesRead))
		}
		if r.archiver != nil {
			if err := r.archiver.Archive(m.path, m.fileID); err != nil {
				r.logger.Warnf("reader: archival failed for %s, deleting anyway: %v", m.path, err)
			}
		}
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			r.logger.Warnf("reader: could not delete acknowledged data file %s: %v", m.path, err)
		}
		r.deletionMarkers = r.deletionMarkers[1:]
		r.ledger.IncrementAckedReaderFileID()
		freed = true
	}

	if freed {
		r.ledger.NotifyWriterWaiters()
	}
}

// Close releases the reader's open file handle without affecting the
// ledger; the writer's Close (or process exit) is what signals end-of-stream.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		err := r.f.Close()
		r.f = nil
		r.br = nil
		return err
	}
	return nil
}
