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

package netflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/solarisdb/fluxcore/golibs/cast"
	"github.com/solarisdb/fluxcore/golibs/errors"
	"github.com/solarisdb/fluxcore/golibs/kvs"
	"github.com/solarisdb/fluxcore/golibs/logging"
	gsync "github.com/solarisdb/fluxcore/golibs/sync"
	"github.com/tidwall/buntdb"
)

// BuntdbTemplateStore persists templates to a local BuntDB file so a
// decoder restart does not have to wait out every exporter's template
// refresh interval, grounded on pkg/storage/buntdb's Storage (same
// tx/marshal idiom). It has no Init method: NewBuntdbTemplateStore opens
// the DB and Shutdown closes it.
type BuntdbTemplateStore struct {
	cfg    BuntdbTemplateStoreConfig
	db     *buntdb.DB
	logger logging.Logger
}

// BuntdbTemplateStoreConfig configures BuntdbTemplateStore.
type BuntdbTemplateStoreConfig struct {
	// DBFilePath is where the template DB is persisted; ":memory:" (the
	// zero value mapped by NewBuntdbTemplateStore) keeps it purely in-memory.
	DBFilePath string
}

// NewBuntdbTemplateStore opens (or creates) the BuntDB file at cfg.DBFilePath.
func NewBuntdbTemplateStore(cfg BuntdbTemplateStoreConfig) (*BuntdbTemplateStore, error) {
	path := cfg.DBFilePath
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("buntdb.Open(%s) failed: %w", path, err)
	}
	return &BuntdbTemplateStore{cfg: cfg, db: db, logger: logging.NewLogger("netflow.BuntdbTemplateStore")}, nil
}

// Shutdown closes the underlying BuntDB file.
func (s *BuntdbTemplateStore) Shutdown() {
	s.logger.Infof("shutting down...")
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Save implements PersistentTemplateStore.
func (s *BuntdbTemplateStore) Save(key TemplateKey, tmpl *Template) error {
	tx := mustBeginTemplateTx(s.db, true)
	defer mustRollbackTemplateTx(tx)

	val := mustMarshalTemplate(tmpl)
	if _, _, err := tx.Set(key.String(), val, nil); err != nil {
		return fmt.Errorf("tx.Set(%s) failed: %w", key, err)
	}
	return mustCommitTemplateTx(tx)
}

// LoadAll implements PersistentTemplateStore.
func (s *BuntdbTemplateStore) LoadAll() (map[TemplateKey]*Template, error) {
	tx := mustBeginTemplateTx(s.db, false)
	defer mustRollbackTemplateTx(tx)

	out := map[TemplateKey]*Template{}
	var iterErr error
	err := tx.Ascend("", func(k, v string) bool {
		key, err := parseTemplateKey(k)
		if err != nil {
			s.logger.Warnf("skipping unparseable stored template key %q: %s", k, err)
			return true
		}
		var tmpl Template
		if err := json.Unmarshal(cast.StringToByteArray(v), &tmpl); err != nil {
			iterErr = fmt.Errorf("unmarshal template %s failed: %w", k, err)
			return false
		}
		out[key] = &tmpl
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

func mustBeginTemplateTx(db *buntdb.DB, writable bool) *buntdb.Tx {
	tx, err := db.Begin(writable)
	if err != nil {
		panic(fmt.Errorf("mustBeginTemplateTx(%t) failed: %v", writable, err))
	}
	return tx
}

func mustCommitTemplateTx(tx *buntdb.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit() failed: %w", err)
	}
	return nil
}

func mustRollbackTemplateTx(tx *buntdb.Tx) {
	if err := tx.Rollback(); err != nil && err != buntdb.ErrTxClosed {
		panic(fmt.Errorf("mustRollbackTemplateTx() failed: %v", err))
	}
}

func mustMarshalTemplate(tmpl *Template) string {
	b, err := json.Marshal(tmpl)
	if err != nil {
		panic(fmt.Errorf("mustMarshalTemplate() failed: %v", err))
	}
	return cast.ByteArrayToString(b)
}

// parseTemplateKey reverses TemplateKey.String's "<exporterAddr>/<domainID>/
// <templateID>" format. fmt.Sscanf with a "%s" verb cannot do this: "%s" is
// greedy and consumes the whole string since there are no spaces to stop it
// at, leaving nothing left to match the trailing "/%d/%d". ExporterAddr may
// itself contain ':' (host:port) but never '/', so splitting from the right
// is unambiguous.
func parseTemplateKey(s string) (TemplateKey, error) {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return TemplateKey{}, fmt.Errorf("malformed template key %q: missing template id", s)
	}
	templateID, err := strconv.ParseUint(s[idx+1:], 10, 16)
	if err != nil {
		return TemplateKey{}, fmt.Errorf("malformed template key %q: bad template id: %w", s, err)
	}
	rest := s[:idx]

	idx = strings.LastIndex(rest, "/")
	if idx < 0 {
		return TemplateKey{}, fmt.Errorf("malformed template key %q: missing domain id", s)
	}
	domainID, err := strconv.ParseUint(rest[idx+1:], 10, 32)
	if err != nil {
		return TemplateKey{}, fmt.Errorf("malformed template key %q: bad domain id: %w", s, err)
	}

	return TemplateKey{
		ExporterAddr:        rest[:idx],
		ObservationDomainID: uint32(domainID),
		TemplateID:          uint16(templateID),
	}, nil
}

// templateKeyPrefix is the namespace every entry this store writes lives
// under in a shared kvs.Storage (section 6's Redis-backed variant serves
// multiple decoder instances off the same keyspace).
const templateKeyPrefix = "netflow/templates/"

// RedisTemplateStore persists templates through golibs/kvs.Storage (backed
// by golibs/kvs/redis in production, miniredis in tests), so multiple
// decoder instances behind a load balancer converge on the same template
// set instead of each waiting out a cold start independently.
type RedisTemplateStore struct {
	storage kvs.Storage
	locker  gsync.Locker
	logger  logging.Logger
}

// NewRedisTemplateStore wraps an already-constructed kvs.Storage (typically
// golibs/kvs/redis.New).
func NewRedisTemplateStore(storage kvs.Storage) *RedisTemplateStore {
	return &RedisTemplateStore{storage: storage, logger: logging.NewLogger("netflow.RedisTemplateStore")}
}

// SetLockProvider installs a cross-instance write lock (typically
// distlock.NewKvsLockProvider over the same storage) so decoder instances
// sharing one keyspace serialize their template writes instead of racing.
func (s *RedisTemplateStore) SetLockProvider(lp gsync.LockProvider) {
	s.locker = lp.NewLocker(templateKeyPrefix + "writer")
}

// Save implements PersistentTemplateStore.
func (s *RedisTemplateStore) Save(key TemplateKey, tmpl *Template) error {
	if s.locker != nil {
		s.locker.Lock()
		defer s.locker.Unlock()
	}
	val := mustMarshalTemplate(tmpl)
	ctx := context.Background()
	record := kvs.Record{Key: templateKeyPrefix + key.String(), Value: cast.StringToByteArray(val)}
	if _, err := s.storage.Put(ctx, record); err != nil {
		return fmt.Errorf("could not persist template %s: %w", key, err)
	}
	return nil
}

// LoadAll implements PersistentTemplateStore.
func (s *RedisTemplateStore) LoadAll() (map[TemplateKey]*Template, error) {
	ctx := context.Background()
	it, err := s.storage.ListKeys(ctx, templateKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("ListKeys failed: %w", err)
	}

	out := map[TemplateKey]*Template{}
	for it.HasNext() {
		k, ok := it.Next()
		if !ok {
			continue
		}
		rec, err := s.storage.Get(ctx, k)
		if err != nil {
			if errors.Is(err, errors.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("Get(%s) failed: %w", k, err)
		}
		key, err := parseTemplateKey(k[len(templateKeyPrefix):])
		if err != nil {
			s.logger.Warnf("skipping unparseable stored template key %q: %s", k, err)
			continue
		}
		var tmpl Template
		if err := json.Unmarshal(rec.Value, &tmpl); err != nil {
			return nil, fmt.Errorf("unmarshal template %s failed: %w", key, err)
		}
		out[key] = &tmpl
	}
	return out, nil
}
