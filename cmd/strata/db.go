// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/strata-db/strata"
)

// openDB opens dir with the engine's default options, exiting the process
// on failure -- every subcommand here is a single shot against an existing
// (or newly created) database directory, so there is no caller left to
// usefully recover from an Open error.
func openDB(dir string) *strata.DB {
	d, err := strata.Open(dir, &strata.Options{})
	if err != nil {
		log.Fatal(err)
	}
	return d
}

func closeDB(d *strata.DB) {
	if err := d.Close(); err != nil {
		log.Fatal(err)
	}
}
