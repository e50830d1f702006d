// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata"
)

var putNoSync bool

var putCmd = &cobra.Command{
	Use:   "put <dir> <key> <value>",
	Short: "set the value for a key",
	Args:  cobra.ExactArgs(3),
	Run:   runPut,
}

func runPut(cmd *cobra.Command, args []string) {
	d := openDB(args[0])
	defer closeDB(d)

	opts := strata.Sync
	if putNoSync {
		opts = strata.NoSync
	}
	if err := d.Set([]byte(args[1]), []byte(args[2]), opts); err != nil {
		log.Fatal(err)
	}
}
