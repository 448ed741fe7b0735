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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/solarisdb/fluxcore/golibs/container/lru"
	"github.com/solarisdb/fluxcore/golibs/errors"
	"github.com/solarisdb/fluxcore/golibs/logging"
	"github.com/solarisdb/fluxcore/golibs/ulidutils"
)

// pendingInsert is the value insertLocal hands its LRU createNewF callback
// through, since golibs/container/lru.Cache only creates entries on a miss
// and has no direct "insert" method. It is read via an atomic.Pointer, not
// tc.mu: ECache.GetOrCreate invokes the callback outside its own internal
// lock, and insertLocal calls GetOrCreate while already holding tc.mu (a
// plain mutex can't be re-locked by the same goroutine), so the callback
// must not take tc.mu either.
type pendingInsert struct {
	key  TemplateKey
	tmpl *Template
}

// DefaultTemplateCacheCapacity bounds how many distinct (exporter, domain,
// template ID) entries a TemplateCache holds before evicting the least
// recently used one (section 4.6).
const DefaultTemplateCacheCapacity = 4096

// PersistentTemplateStore is the optional durable backing for a
// TemplateCache: templates survive a decoder restart without waiting for
// every exporter to retransmit them (exporters typically do so only once
// per template-refresh interval, commonly tens of minutes). See
// NewBuntdbTemplateStore and NewRedisTemplateStore.
type PersistentTemplateStore interface {
	Save(key TemplateKey, tmpl *Template) error
	LoadAll() (map[TemplateKey]*Template, error)
}

// TemplateCache is C6: a bounded, per-exporter LRU of flow templates. It
// wraps golibs/container/lru.Cache, whose single internal map and mutex
// already give the "either the full old template or the full new one, never
// half-updated" guarantee section 4.6 requires of concurrent readers.
type TemplateCache struct {
	mu      sync.Mutex
	cache   *lru.Cache[TemplateKey, *Template]
	pending atomic.Pointer[pendingInsert]
	store   PersistentTemplateStore
	logger  logging.Logger
}

// NewTemplateCache constructs a TemplateCache with the given capacity. store
// may be nil, in which case the cache is purely in-memory; otherwise every
// inserted/replaced template is also persisted, and LoadAll's contents seed
// the cache immediately.
func NewTemplateCache(capacity int, store PersistentTemplateStore) (*TemplateCache, error) {
	if capacity <= 0 {
		capacity = DefaultTemplateCacheCapacity
	}
	tc := &TemplateCache{
		store:  store,
		logger: logging.NewLogger("netflow.TemplateCache"),
	}
	cache, err := lru.NewCache[TemplateKey, *Template](capacity,
		func(k TemplateKey) (*Template, error) {
			if p := tc.pending.Load(); p != nil && p.key == k {
				return p.tmpl, nil
			}
			return nil, fmt.Errorf("netflow: no template cached for %s: %w", k, errors.ErrNotExist)
		},
		func(k TemplateKey, v *Template) {
			tc.logger.Debugf("evicted template %s (generation=%s)", k, v.Generation)
		},
	)
	if err != nil {
		return nil, err
	}
	tc.cache = cache

	if store != nil {
		seed, err := store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("could not load persisted templates: %w", err)
		}
		for k, t := range seed {
			tc.insertLocal(k, t)
		}
	}
	return tc, nil
}

// Put inserts or replaces the template for key. Replacement is atomic from a
// reader's perspective: Get either returns the template that was current
// before the call or the one installed by it, never a mix.
func (tc *TemplateCache) Put(key TemplateKey, tmpl *Template) error {
	tc.mu.Lock()
	tc.insertLocal(key, tmpl)
	tc.mu.Unlock()

	if tc.store != nil {
		if err := tc.store.Save(key, tmpl); err != nil {
			return fmt.Errorf("could not persist template %s: %w", key, err)
		}
	}
	return nil
}

// insertLocal performs the in-memory swap. Callers must hold tc.mu, which
// serializes concurrent Put/insertLocal calls so only one pending entry is
// ever staged at a time; the createNewF callback matches it against the key
// it was actually called for, so a concurrent Get of some other key can
// never be handed this one's template (see pendingInsert).
func (tc *TemplateCache) insertLocal(key TemplateKey, tmpl *Template) {
	if tmpl.Generation == (ulid.ULID{}) {
		tmpl.Generation = ulidutils.New()
	}
	tc.cache.Remove(key) // evict any stale entry so GetOrCreate below sees a miss
	tc.pending.Store(&pendingInsert{key: key, tmpl: tmpl})
	_, _ = tc.cache.GetOrCreate(key)
	tc.pending.Store(nil)
}

// Get returns the template registered for key, if any.
func (tc *TemplateCache) Get(key TemplateKey) (*Template, bool) {
	t, err := tc.cache.GetOrCreate(key)
	if err != nil {
		return nil, false
	}
	return t, true
}
