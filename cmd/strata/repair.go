// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair <dir>",
	Short: "reclaim sstables the manifest no longer references",
	Args:  cobra.ExactArgs(1),
	Run:   runRepair,
}

func runRepair(cmd *cobra.Command, args []string) {
	d := openDB(args[0])
	defer closeDB(d)

	if err := d.Repair(); err != nil {
		log.Fatal(err)
	}
}
