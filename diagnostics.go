package fat32sd

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Diagnose re-derives FreeSectors from a full FAT scan and walks every
// allocated chain looking for cycles or premature truncation. It is a
// read-only, offline check: it never mutates volume state, and unlike the
// fail-fast operations above it collects every violation it finds instead
// of stopping at the first.
func (v *Volume) Diagnose() error {
	if err := v.requireMounted(); err != nil {
		return err
	}

	var result *multierror.Error

	computedFree := uint32(0)
	visited := make(map[uint32]bool)

	for cluster := uint32(2); cluster < v.geo.TotalDataSectors+2; cluster++ {
		entry, err := v.readFATEntry(cluster)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("cluster %d: %w", cluster, err))
			continue
		}
		if entry == 0 {
			computedFree++
		}
	}

	if computedFree != v.freeSectorCount {
		result = multierror.Append(result, fmt.Errorf(
			"FreeSectorCount mismatch: FSInfo says %d, FAT scan found %d",
			v.freeSectorCount, computedFree))
	}

	walkChain := func(head uint32) error {
		cluster := head
		hops := uint32(0)
		for !IsEndOfChain(cluster) {
			if cluster < 2 || cluster >= v.geo.TotalDataSectors+2 {
				return fmt.Errorf("chain from cluster %d references out-of-range cluster %d", head, cluster)
			}
			if visited[cluster] {
				return fmt.Errorf("chain from cluster %d contains a cycle at cluster %d", head, cluster)
			}
			visited[cluster] = true

			next, err := v.readFATEntry(cluster)
			if err != nil {
				return err
			}
			cluster = next
			hops++
			if hops > v.geo.TotalDataSectors {
				return fmt.Errorf("chain from cluster %d exceeds total cluster count without reaching end-of-chain", head)
			}
		}
		return nil
	}

	err := v.List(func(entry DirectoryEntryInfo) error {
		if e := walkChain(entry.FirstCluster); e != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", entry.Name, e))
		}
		return nil
	})
	if err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
