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
	"context"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/solarisdb/fluxcore/pkg/buffer"
)

func newInspectBufferCmd() *cobra.Command {
	var dataDir string
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect-buffer",
		Short: "dumps records currently held in an on-disk buffer without disturbing the writer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectBuffer(dataDir, limit)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "buffer data directory (required)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of records to print, 0 for no limit")
	_ = cmd.MarkFlagRequired("data-dir")
	return cmd
}

func inspectBuffer(dataDir string, limit int) error {
	ledger, err := buffer.OpenLedger(dataDir, 0)
	if err != nil {
		return fmt.Errorf("could not open ledger at %s: %w", dataDir, err)
	}
	defer ledger.Close()

	reader, err := buffer.NewReader(buffer.Config{DataDir: dataDir}, ledger)
	if err != nil {
		return fmt.Errorf("could not open reader at %s: %w", dataDir, err)
	}
	defer reader.Close()

	ctx := context.Background()
	printed := 0
	for limit <= 0 || printed < limit {
		rec, tok, err := reader.Peek(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if buffer.IsCorruption(err) {
				fmt.Printf("skipping corrupted region: %v\n", err)
				continue
			}
			return fmt.Errorf("peek failed after %d records: %w", printed, err)
		}
		fmt.Println(spew.Sdump(rec))
		if err := reader.Take(tok); err != nil {
			return fmt.Errorf("take failed after %d records: %w", printed, err)
		}
		printed++
	}
	fmt.Printf("printed %d record(s); total_buffer_size=%d\n", printed, ledger.TotalBufferSize())
	return nil
}
