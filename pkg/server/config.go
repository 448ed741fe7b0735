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

package server

import (
	"encoding/json"
	"fmt"

	"github.com/solarisdb/fluxcore/golibs/config"
	"github.com/solarisdb/fluxcore/golibs/logging"
	"github.com/solarisdb/fluxcore/golibs/transport"
	"github.com/solarisdb/fluxcore/pkg/buffer"
	"github.com/solarisdb/fluxcore/pkg/gelf"
	"github.com/solarisdb/fluxcore/pkg/netflow"
)

// Config is the top-level fluxcore daemon configuration: one on-disk buffer
// shared by a GELF UDP listener and a NetFlow/IPFIX UDP listener, each
// writing reassembled/decoded records into the same buffer.Writer.
type Config struct {
	// GelfTransport is the UDP address the GELF listener binds to. A nil
	// value disables GELF ingestion entirely.
	GelfTransport *transport.Config
	// NetflowTransport is the UDP address the NetFlow/IPFIX listener binds
	// to. A nil value disables flow ingestion entirely.
	NetflowTransport *transport.Config

	// Buffer controls the shared on-disk buffer both listeners write into.
	Buffer buffer.Config
	// Gelf controls chunk reassembly behavior.
	Gelf gelf.Config
	// Netflow controls template caching and field decoding behavior.
	Netflow netflow.Config

	// ArchivePrefix, if non-empty, enables S3 archival of every finalized
	// buffer data file under this key prefix (must start and end with '/').
	ArchivePrefix string
	// ArchiveBucket is the S3 bucket archival uploads to, required when
	// ArchivePrefix is set.
	ArchiveBucket string

	// TemplateDBFilePath persists NetFlow templates across restarts with
	// BuntDB; empty keeps the template cache purely in-memory.
	TemplateDBFilePath string
	// TemplateRedisAddr shares one NetFlow template keyspace across several
	// decoder instances through Redis instead of a local BuntDB file. When
	// both this and TemplateDBFilePath are set, Redis wins.
	TemplateRedisAddr string
}

// getDefaultConfig returns the default fluxcore daemon config.
func getDefaultConfig() *Config {
	gt := transport.GetDefaultGRPCConfig()
	gt.Network = "udp"
	gt.Port = 12201
	nt := transport.GetDefaultGRPCConfig()
	nt.Network = "udp"
	nt.Port = 2055
	return &Config{
		GelfTransport:    gt,
		NetflowTransport: nt,
		Buffer: buffer.Config{
			DataDir:       "fluxcore-data",
			MaxBufferSize: 1 << 30,
		},
	}
}

// BuildConfig loads the daemon config the same way the rest of the pack
// does: defaults, then cfgFile (YAML or JSON, by extension), then
// FLUXCORE_-prefixed environment variables, each layer overriding the last.
func BuildConfig(cfgFile string) (*Config, error) {
	log := logging.NewLogger("fluxcore.ConfigBuilder")
	log.Infof("building config. cfgFile=%s", cfgFile)
	e := config.NewEnricher(*getDefaultConfig())
	fe := config.NewEnricher(Config{})
	if err := fe.LoadFromFile(cfgFile); err != nil {
		return nil, fmt.Errorf("could not read data from the file %s: %w", cfgFile, err)
	}
	_ = e.ApplyOther(fe)
	_ = e.ApplyEnvVariables("FLUXCORE", "_")
	cfg := e.Value()
	return &cfg, nil
}

// String implements fmt.Stringer in a pretty console form.
func (c *Config) String() string {
	b, _ := json.MarshalIndent(*c, "", "  ")
	return string(b)
}
