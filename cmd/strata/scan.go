// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var (
	scanStart   string
	scanEnd     string
	scanReverse bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "scan a range of keys in order",
	Args:  cobra.ExactArgs(1),
	Run:   runScan,
}

func runScan(cmd *cobra.Command, args []string) {
	d := openDB(args[0])
	defer closeDB(d)

	iter := d.NewIter(nil)
	defer func() {
		if err := iter.Close(); err != nil {
			log.Fatal(err)
		}
	}()

	if scanReverse {
		var valid bool
		if scanEnd != "" {
			valid = iter.SeekLT([]byte(scanEnd))
		} else {
			valid = iter.Last()
		}
		for ; valid; valid = iter.Prev() {
			if scanStart != "" && string(iter.Key()) < scanStart {
				break
			}
			fmt.Printf("%s: %s\n", iter.Key(), iter.Value())
		}
	} else {
		var valid bool
		if scanStart != "" {
			valid = iter.SeekGE([]byte(scanStart))
		} else {
			valid = iter.First()
		}
		for ; valid; valid = iter.Next() {
			if scanEnd != "" && string(iter.Key()) >= scanEnd {
				break
			}
			fmt.Printf("%s: %s\n", iter.Key(), iter.Value())
		}
	}

	if err := iter.Error(); err != nil {
		log.Fatal(err)
	}
}
