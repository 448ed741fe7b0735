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
	"fmt"
	"os"
	"sync"

	"github.com/solarisdb/fluxcore/golibs/errors"
	"github.com/solarisdb/fluxcore/golibs/files"
	"github.com/solarisdb/fluxcore/golibs/logging"
)

const writerBufSize = 64 * 1024

// Writer is the single producer of a buffer instance (C3). One Writer and one
// Reader share a *Ledger; no other synchronization exists between them beyond
// the ledger's wakeups, so constructing two Writers over the same data
// directory is a programmer error.
type Writer struct {
	cfg    Config
	ledger *Ledger
	logger logging.Logger

	mu          sync.Mutex
	f           *os.File
	bw          *bufio.Writer
	bytesInFile int64
	firstOpen   bool
	pendingRoll bool
	closed      bool
}

// NewWriter opens (or creates) the data directory at cfg.DataDir, validates
// the tail of whatever file the ledger says the writer was appending to, and
// returns a ready-to-use Writer. ledger must already be open over the same
// directory.
func NewWriter(cfg Config, ledger *Ledger) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := files.EnsureDirExists(cfg.DataDir); err != nil {
		return nil, err
	}
	w := &Writer{
		cfg:       cfg,
		ledger:    ledger,
		logger:    logging.NewLogger("buffer.Writer"),
		firstOpen: true,
	}
	if err := w.validateStartupFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// validateStartupFile implements section 4.3's "startup validation": it
// attempts to decode every record of the file the ledger currently points
// the writer at. A torn tail (partial write) marks the file for skip instead
// of failing the open; the next Write call will roll to the next file.
func (w *Writer) validateStartupFile() error {
	path := dataFilePath(w.cfg.DataDir, w.ledger.WriterFileID())
	exists, err := files.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read %s for startup validation: %w", path, err)
	}
	res := scanFile(buf)
	if res.partial {
		w.logger.Warnf("writer startup: %s has a torn tail after %d valid records (%d bytes); rolling to the next file", path, res.records, res.validBytes)
		w.pendingRoll = true
	} else if res.corrupted {
		w.logger.Warnf("writer startup: %s has a checksum-corrupted record after %d valid records; rolling to the next file", path, res.records)
		w.pendingRoll = true
	}
	return nil
}

// Write encodes (metadata, payload) and appends it to the current data file,
// assigning it the next writer record ID. It suspends on backpressure
// (buffer full) and on file-ownership conflicts across the 16-bit file ID
// wraparound (section 4.3 step 2).
func (w *Writer) Write(ctx context.Context, metadata uint32, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("writer is closed: %w", errors.ErrClosed)
	}
	if int64(len(payload)) > w.cfg.MaxRecordSize {
		return 0, fmt.Errorf("payload of %d bytes exceeds max record size %d: %w", len(payload), w.cfg.MaxRecordSize, errors.ErrInvalid)
	}

	for {
		if w.cfg.MaxBufferSize > 0 && w.ledger.TotalBufferSize() >= w.cfg.MaxBufferSize {
			w.ledger.WaitForReader(ctx.Done())
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			continue
		}
		opened, err := w.ensureOpenFile(ctx)
		if err != nil {
			return 0, err
		}
		if !opened {
			continue
		}
		break
	}

	id := w.ledger.AcquireNextWriterRecordID()
	frame, err := Encode(id, metadata, payload, int(w.cfg.MaxRecordSize))
	if err != nil {
		return 0, err
	}
	if _, err := w.bw.Write(frame); err != nil {
		return 0, fmt.Errorf("could not write record %d: %w", id, err)
	}

	w.bytesInFile += int64(len(frame))
	w.ledger.IncrementTotalRecords()
	w.ledger.AddTotalBufferSize(int64(len(frame)))
	w.ledger.NotifyReaderWaiters()

	if w.ledger.ShouldFlush() {
		if err := w.flushLocked(); err != nil {
			return id, err
		}
	}
	return id, nil
}

// ensureOpenFile makes sure a writable file with room is open, rolling over
// (and waiting on the reader if the next file ID still belongs to it) as
// needed. It returns opened=false when the caller should loop (a wait
// occurred and the situation must be re-evaluated).
func (w *Writer) ensureOpenFile(ctx context.Context) (bool, error) {
	if w.f != nil {
		if w.pendingRoll || w.bytesInFile >= w.cfg.MaxDataFileSize {
			if err := w.rollLocked(); err != nil {
				return false, err
			}
		} else {
			return true, nil
		}
	} else if w.pendingRoll {
		// Startup validation found a torn/corrupted tail in the file the
		// ledger points at, but nothing is open yet to flush/close: just
		// roll the ledger's file ID forward before opening. The rolled-to ID
		// is no longer the ledger's startup file, so the reader-ownership
		// wait below must apply to it.
		w.ledger.IncrementWriterFileID()
		w.pendingRoll = false
		w.firstOpen = false
	}

	fid := w.ledger.WriterFileID()
	path := dataFilePath(w.cfg.DataDir, fid)
	exists, err := files.Exists(path)
	if err != nil {
		return false, err
	}
	if exists && !w.firstOpen {
		// We just rolled forward ourselves; a file already sitting at this
		// (wrapped-around) ID belongs to the reader until it is deleted.
		// Overwriting it would destroy unread data.
		w.ledger.WaitForReader(ctx.Done())
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return false, fmt.Errorf("could not open data file %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return false, err
	}
	w.f = f
	w.bw = bufio.NewWriterSize(f, writerBufSize)
	w.bytesInFile = fi.Size()
	w.firstOpen = false
	return true, nil
}

func (w *Writer) rollLocked() error {
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("could not close data file: %w", err)
	}
	w.f = nil
	w.bw = nil
	w.bytesInFile = 0
	w.ledger.IncrementWriterFileID()
	w.pendingRoll = false
	return nil
}

// flushLocked drains the internal write buffer, fsyncs the data file, and
// flushes the ledger. Callers must hold w.mu.
func (w *Writer) flushLocked() error {
	if w.bw != nil {
		if err := w.bw.Flush(); err != nil {
			return fmt.Errorf("could not drain write buffer: %w", err)
		}
	}
	if w.f != nil {
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("could not fsync data file: %w", err)
		}
	}
	return w.ledger.Flush()
}

// Flush performs the "explicit flush" described in section 4.3: drain
// internal buffer, fsync the data file, flush the ledger region.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close performs a forced final flush and releases the open file handle.
// Per the cancellation model (section 5), this is how a writer signals it is
// "done": Close itself marks the writer done on the ledger (MarkWriterDone),
// so the reader observes end-of-stream once the buffer has drained.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.f != nil {
		err = w.flushLocked()
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
		w.bw = nil
	}
	w.ledger.MarkWriterDone()
	return err
}
