// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package fork tracks hard-fork boundary block numbers, grounded on this
// file's original HardForkConfig/UpdateHardForkConfig pattern (a
// package-level config, overridable in tests) but generalized from a
// single named boundary to an ordered list, since a reorg replay only
// needs to know whether a height range crosses a boundary, not which
// named feature the boundary corresponds to.
package fork

import "sort"

// Config holds every hard-fork boundary block number, in ascending
// order. A boundary at number N means block N is the first block built
// under the new rules.
type Config struct {
	Boundaries []uint64
}

var current = &Config{}

// Update replaces the active hard-fork config; tests call it to install
// deterministic boundaries. cmd/node does not call it, so a node runs
// with no boundaries configured.
func Update(cfg *Config) {
	if cfg == nil {
		return
	}
	boundaries := append([]uint64(nil), cfg.Boundaries...)
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })
	current = &Config{Boundaries: boundaries}
}

// CrossesBoundary reports whether any hard-fork boundary number falls in
// (fromExclusive, toInclusive] — the range a reorg's attached blocks
// span. A hard-fork boundary anywhere in that range forces a clear of
// the shared transaction-verification cache before replay.
func CrossesBoundary(fromExclusive, toInclusive uint64) bool {
	for _, b := range current.Boundaries {
		if b > fromExclusive && b <= toInclusive {
			return true
		}
	}
	return false
}

// IsBoundary reports whether number is itself a configured hard-fork
// boundary.
func IsBoundary(number uint64) bool {
	for _, b := range current.Boundaries {
		if b == number {
			return true
		}
	}
	return false
}
