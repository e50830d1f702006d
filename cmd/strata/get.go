// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata"
)

var getCmd = &cobra.Command{
	Use:   "get <dir> <key>",
	Short: "get the value for a key",
	Args:  cobra.ExactArgs(2),
	Run:   runGet,
}

func runGet(cmd *cobra.Command, args []string) {
	d := openDB(args[0])
	defer closeDB(d)

	value, err := d.Get([]byte(args[1]))
	if err == strata.ErrNotFound {
		log.Fatalf("%s: not found", args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", value)
}
