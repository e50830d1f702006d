// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command strata is a small command-line front end for a strata database
// directory: point lookups, writes, range scans, manual compaction,
// manifest inspection and orphan-file repair.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "strata [command] (flags)",
	Short: "strata database introspection tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		getCmd,
		putCmd,
		scanCmd,
		compactCmd,
		manifestDumpCmd,
		repairCmd,
	)

	scanCmd.Flags().StringVar(&scanStart, "start", "", "inclusive lower bound of the scan")
	scanCmd.Flags().StringVar(&scanEnd, "end", "", "exclusive upper bound of the scan")
	scanCmd.Flags().BoolVarP(&scanReverse, "reverse", "r", false, "scan in descending order")

	compactCmd.Flags().StringVar(&compactStart, "start", "", "inclusive lower bound of the compaction range")
	compactCmd.Flags().StringVar(&compactEnd, "end", "", "exclusive upper bound of the compaction range")

	putCmd.Flags().BoolVar(&putNoSync, "no-sync", false, "don't wait for the write to be synced to stable storage")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
