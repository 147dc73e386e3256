// Package profiles holds a small embedded table of known SD-card capacity
// profiles (reserved sector count, FAT size, and a recommended total sector
// count), loaded from CSV the same way the lineage's disk-geometry table is
// loaded: via gocsv.UnmarshalToCallback in an init().
package profiles

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
)

// Profile describes the geometry a formatter would choose for a given
// nominal card capacity.
type Profile struct {
	CapacityMiB         uint   `csv:"capacity_mib"`
	ReservedSectorCount uint32 `csv:"reserved_sectors"`
	FatSize             uint32 `csv:"fat_size_sectors"`
	TotalSectors        uint32 `csv:"total_sectors"`
}

//go:embed profiles.csv
var profilesCSV string

var (
	once     sync.Once
	byCapMiB map[uint]Profile
)

func load() {
	byCapMiB = make(map[uint]Profile)
	reader := strings.NewReader(profilesCSV)
	err := gocsv.UnmarshalToCallback(reader, func(p Profile) error {
		byCapMiB[p.CapacityMiB] = p
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// Lookup returns the profile for a nominal capacity in MiB, and whether one
// was found. Callers that need geometry for an arbitrary capacity should
// round down to the nearest known profile.
func Lookup(capacityMiB uint) (Profile, bool) {
	once.Do(load)
	p, ok := byCapMiB[capacityMiB]
	return p, ok
}

// All returns every known profile, sorted by ascending capacity is not
// guaranteed; callers that need an order should sort explicitly.
func All() []Profile {
	once.Do(load)
	out := make([]Profile, 0, len(byCapMiB))
	for _, p := range byCapMiB {
		out = append(out, p)
	}
	return out
}
