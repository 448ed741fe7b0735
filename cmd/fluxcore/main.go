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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cldr "github.com/solarisdb/fluxcore/golibs/context"
	"github.com/solarisdb/fluxcore/pkg/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:   "fluxcore",
		Short: "fluxcore ingests GELF and NetFlow/IPFIX traffic into a durable on-disk buffer",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML or JSON config file")
	root.AddCommand(newServeCmd(&cfgFile))
	root.AddCommand(newInspectBufferCmd())
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "runs the fluxcore daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.BuildConfig(*cfgFile)
			if err != nil {
				return err
			}
			ctx := cldr.NewSignalsContext(os.Interrupt)
			return server.Run(ctx, cfg)
		},
	}
}
