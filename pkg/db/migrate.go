// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db

import "fmt"

const CurrentDataVersion = 1

var migrators = map[int]func(*Data) error{ // Start DataVersion -> NextStep
	0: setInitialVersion,
}

// setInitialVersion upgrades files written before DataVersion existed.
// The layout is identical; only the version stamp is missing.
func setInitialVersion(d *Data) error {
	return nil
}

func migrate(d *Data) error {
	for d.DataVersion < CurrentDataVersion {
		migrator, ok := migrators[d.DataVersion]
		if !ok {
			return fmt.Errorf("no migrator for version %d", d.DataVersion)
		}
		if err := migrator(d); err != nil {
			return fmt.Errorf("migrating version %d: %v", d.DataVersion, err)
		}
		d.DataVersion++
	}
	return nil
}
