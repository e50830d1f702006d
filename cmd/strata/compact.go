// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	compactStart string
	compactEnd   string
)

var compactCmd = &cobra.Command{
	Use:   "compact <dir>",
	Short: "force compaction of a key range",
	Args:  cobra.ExactArgs(1),
	Run:   runCompact,
}

func runCompact(cmd *cobra.Command, args []string) {
	d := openDB(args[0])
	defer closeDB(d)

	var start, end []byte
	if compactStart != "" {
		start = []byte(compactStart)
	}
	if compactEnd != "" {
		end = []byte(compactEnd)
	}
	if err := d.CompactRange(start, end); err != nil {
		log.Fatal(err)
	}
}
