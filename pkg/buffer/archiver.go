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
	"fmt"
	"os"

	"github.com/solarisdb/fluxcore/golibs/logging"
	"github.com/solarisdb/fluxcore/golibs/sss"
)

// Archiver is notified before a finalized data file is deleted by the
// reader. It exists purely for audit/replay purposes: a failure here never
// blocks or changes deletion semantics (section 4.4's deletion-marker flow
// owns that decision independently).
type Archiver interface {
	Archive(path string, fileID uint16) error
}

// S3Archiver uploads each finalized data file to an sss.Storage (typically
// golibs/sss/s3.Storage) before the reader deletes it locally, keeping a
// durable copy of everything that ever passed through the buffer.
type S3Archiver struct {
	storage sss.Storage
	prefix  string
	logger  logging.Logger
}

// NewS3Archiver builds an S3Archiver that stores each file under
// "<prefix><file_id>.dat". prefix must satisfy sss.IsPathValid (start and
// end with '/').
func NewS3Archiver(storage sss.Storage, prefix string) *S3Archiver {
	return &S3Archiver{storage: storage, prefix: prefix, logger: logging.NewLogger("buffer.S3Archiver")}
}

// Archive uploads the data file at path under its file ID before the caller
// deletes it.
func (a *S3Archiver) Archive(path string, fileID uint16) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open %s for archival: %w", path, err)
	}
	defer f.Close()

	key := fmt.Sprintf("%s%05d.dat", a.prefix, fileID)
	if err := a.storage.Put(key, f); err != nil {
		return fmt.Errorf("could not upload %s to %s: %w", path, key, err)
	}
	a.logger.Infof("archived %s to %s", path, key)
	return nil
}
