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

// Package server wires the fluxcore daemon together: a GELF UDP listener
// and a NetFlow/IPFIX UDP listener, both feeding one on-disk buffer, plus
// an optional S3 archiver for finalized data files.
package server

import (
	"context"
	"encoding/json"
	"net"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/davecgh/go-spew/spew"
	goredis "github.com/go-redis/redis/v8"
	"github.com/logrange/linker"

	dist "github.com/solarisdb/fluxcore/golibs/kvs/distlock"
	kvsredis "github.com/solarisdb/fluxcore/golibs/kvs/redis"
	"github.com/solarisdb/fluxcore/golibs/logging"
	"github.com/solarisdb/fluxcore/golibs/sss/s3"
	"github.com/solarisdb/fluxcore/golibs/transport"
	"github.com/solarisdb/fluxcore/pkg/buffer"
	"github.com/solarisdb/fluxcore/pkg/gelf"
	"github.com/solarisdb/fluxcore/pkg/netflow"
)

// sourceGelf and sourceNetflow tag buffer.Record.Metadata with which
// listener produced the record, so a reader can tell the two payload
// schemas apart without a separate ledger per source.
const (
	sourceGelf uint32 = iota + 1
	sourceNetflow
)

// Run is the fluxcore daemon's entry point: it opens the shared buffer,
// starts both UDP listeners, and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *Config) error {
	log := logging.NewLogger("fluxcore.server")
	log.Infof(spew.Sprint(cfg))
	defer log.Infof("server is stopped")

	ledger, err := buffer.OpenLedger(cfg.Buffer.DataDir, cfg.Buffer.FlushInterval)
	if err != nil {
		return err
	}
	writer, err := buffer.NewWriter(cfg.Buffer, ledger)
	if err != nil {
		return err
	}
	reader, err := buffer.NewReader(cfg.Buffer, ledger)
	if err != nil {
		return err
	}

	inj := linker.New()
	if cfg.ArchivePrefix != "" {
		inj.Register(linker.Component{Name: "", Value: &aws.Config{}})
		inj.Register(linker.Component{Name: "AwsS3Bucket", Value: cfg.ArchiveBucket})
		s3Storage := &s3.Storage{Bucket: cfg.ArchiveBucket}
		inj.Register(linker.Component{Name: "", Value: s3Storage})
		inj.Init(ctx)
		reader.SetArchiver(buffer.NewS3Archiver(s3Storage, cfg.ArchivePrefix))
	}

	var store netflow.PersistentTemplateStore
	switch {
	case cfg.TemplateRedisAddr != "":
		storage := kvsredis.New(&goredis.Options{Addr: cfg.TemplateRedisAddr})
		lp := dist.NewKvsLockProvider(storage, "netflow/locks/")
		defer lp.Shutdown()
		rs := netflow.NewRedisTemplateStore(storage)
		rs.SetLockProvider(lp)
		store = rs
	case cfg.TemplateDBFilePath != "":
		bs, err := netflow.NewBuntdbTemplateStore(netflow.BuntdbTemplateStoreConfig{DBFilePath: cfg.TemplateDBFilePath})
		if err != nil {
			return err
		}
		defer bs.Shutdown()
		store = bs
	}
	cache, err := netflow.NewTemplateCache(cfg.Netflow.TemplateCacheCapacity, store)
	if err != nil {
		return err
	}
	registry, err := netflow.NewFieldRegistry(cfg.Netflow)
	if err != nil {
		return err
	}
	decoder := netflow.NewDecoder(cfg.Netflow, cache, registry)

	if cfg.GelfTransport != nil {
		go runGelfListener(ctx, log, *cfg.GelfTransport, cfg.Gelf, writer)
	}
	if cfg.NetflowTransport != nil {
		go runNetflowListener(ctx, log, *cfg.NetflowTransport, decoder, writer)
	}

	<-ctx.Done()
	_ = writer.Close()
	_ = reader.Close()
	_ = ledger.Close()
	if cfg.ArchivePrefix != "" {
		inj.Shutdown()
	}
	return nil
}

func runGelfListener(ctx context.Context, log logging.Logger, tcfg transport.Config, cfg gelf.Config, w *buffer.Writer) {
	conn, err := net.ListenPacket("udp", tcfg.Addr())
	if err != nil {
		log.Errorf("gelf: could not listen on %s: %v", tcfg.Addr(), err)
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.Infof("gelf: listening on %s", tcfg.Addr())
	reassembler := gelf.NewReassembler(cfg)
	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("gelf: read error: %v", err)
			continue
		}
		msg, ok, err := reassembler.FeedDatagram(append([]byte(nil), buf[:n]...))
		if err != nil {
			log.Debugf("gelf: dropped datagram: %v", err)
			continue
		}
		if !ok {
			continue
		}
		if _, err := w.Write(ctx, sourceGelf, msg.Payload); err != nil {
			log.Warnf("gelf: write failed: %v", err)
		}
	}
}

func runNetflowListener(ctx context.Context, log logging.Logger, tcfg transport.Config, d *netflow.Decoder, w *buffer.Writer) {
	conn, err := net.ListenPacket("udp", tcfg.Addr())
	if err != nil {
		log.Errorf("netflow: could not listen on %s: %v", tcfg.Addr(), err)
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.Infof("netflow: listening on %s", tcfg.Addr())
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("netflow: read error: %v", err)
			continue
		}
		result, err := d.Decode(addr.String(), append([]byte(nil), buf[:n]...))
		if err != nil {
			log.Warnf("netflow: decode failed from %s: %v", addr, err)
			continue
		}
		for _, rec := range result.Records {
			payload, err := marshalDecodedRecord(rec)
			if err != nil {
				log.Warnf("netflow: record marshal failed: %v", err)
				continue
			}
			if _, err := w.Write(ctx, sourceNetflow, payload); err != nil {
				log.Warnf("netflow: write failed: %v", err)
			}
		}
	}
}

// marshalDecodedRecord turns a decoded flow record into the buffer's
// payload format. JSON keeps the ledger's contents inspectable with
// inspect-buffer without a separate decoder.
func marshalDecodedRecord(rec netflow.DecodedRecord) ([]byte, error) {
	return json.Marshal(rec)
}
