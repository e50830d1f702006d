// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/record"
	"github.com/strata-db/strata/internal/storage"
)

var manifestDumpCmd = &cobra.Command{
	Use:   "manifest-dump <dir>",
	Short: "print every VersionEdit recorded in the current MANIFEST",
	Args:  cobra.ExactArgs(1),
	Run:   runManifestDump,
}

func runManifestDump(cmd *cobra.Command, args []string) {
	dir := args[0]
	fs := storage.Default

	current, err := fs.Open(base.MakeFilename(dir, base.FileTypeCurrent, 0))
	if err != nil {
		log.Fatal(err)
	}
	defer current.Close()

	name, err := io.ReadAll(current)
	if err != nil {
		log.Fatal(err)
	}

	_, manifestFileNum, ok := base.ParseFilename(strings.TrimSpace(string(name)))
	if !ok {
		log.Fatalf("%s: invalid CURRENT contents %q", dir, name)
	}

	f, err := fs.Open(fs.PathJoin(dir, base.MakeFilename("", base.FileTypeManifest, manifestFileNum)))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	rr := record.NewReader(f, manifestFileNum)
	for i := 0; ; i++ {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}

		var ve manifest.VersionEdit
		if err := ve.Decode(r); err != nil {
			log.Fatal(err)
		}
		printVersionEdit(i, &ve)
	}
}

func printVersionEdit(i int, ve *manifest.VersionEdit) {
	fmt.Printf("edit %d:\n", i)
	if ve.ComparatorName != "" {
		fmt.Printf("  comparator: %s\n", ve.ComparatorName)
	}
	if ve.LogNumber != 0 {
		fmt.Printf("  log-number: %d\n", ve.LogNumber)
	}
	if ve.PrevLogNumber != 0 {
		fmt.Printf("  prev-log-number: %d\n", ve.PrevLogNumber)
	}
	if ve.NextFileNumber != 0 {
		fmt.Printf("  next-file-number: %d\n", ve.NextFileNumber)
	}
	if ve.LastSeqNum != 0 {
		fmt.Printf("  last-sequence: %d\n", ve.LastSeqNum)
	}
	for entry := range ve.DeletedFiles {
		fmt.Printf("  deleted: level=%d file=%06d\n", entry.Level, entry.FileNum)
	}
	for _, entry := range ve.NewFiles {
		m := entry.Meta
		fmt.Printf("  added: level=%d file=%06d size=%d smallest=%q largest=%q\n",
			entry.Level, m.FileNum, m.Size, m.Smallest.UserKey, m.Largest.UserKey)
	}
}
