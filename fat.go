package fat32sd

import (
	"encoding/binary"

	"github.com/kestrelfs/fat32sd/errors"
)

const fatEntriesPerSector = SectorSize / 4
const fatEOCLow = 0x0FFFFFF8
const fatEOCHigh = 0x0FFFFFFF
const fatEntryMask = 0x0FFFFFFF

// IsEndOfChain reports whether a 28-bit FAT cell value marks the end of a
// cluster chain. This is always a range check, never an equality comparison
// against a single sampled marker value: the formatter is free to choose any
// value in [0x0FFFFFF8, 0x0FFFFFFF].
func IsEndOfChain(value uint32) bool {
	v := value & fatEntryMask
	return v >= fatEOCLow && v <= fatEOCHigh
}

func (v *Volume) fatEntryLocation(cluster uint32) (sector uint32, index uint32) {
	sector = v.geo.ReservedSectorCount + cluster/fatEntriesPerSector
	index = cluster % fatEntriesPerSector
	return
}

func (v *Volume) readFATEntryRaw(cluster uint32) (uint32, error) {
	sector, index := v.fatEntryLocation(cluster)
	buf := v.sectorBuf[:]
	if err := v.adapter.readSector(sector, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[index*4 : index*4+4]), nil
}

// readFATEntry returns the 28-bit significant value of a FAT cell.
func (v *Volume) readFATEntry(cluster uint32) (uint32, error) {
	raw, err := v.readFATEntryRaw(cluster)
	if err != nil {
		return 0, err
	}
	return raw & fatEntryMask, nil
}

// writeFATEntry read-modify-writes a FAT cell, preserving its high 4 bits.
func (v *Volume) writeFATEntry(cluster uint32, value uint32) error {
	sector, index := v.fatEntryLocation(cluster)
	buf := v.sectorBuf[:]
	if err := v.adapter.readSector(sector, buf); err != nil {
		return err
	}
	old := binary.LittleEndian.Uint32(buf[index*4 : index*4+4])
	newVal := (old &^ fatEntryMask) | (value & fatEntryMask)
	binary.LittleEndian.PutUint32(buf[index*4:index*4+4], newVal)
	return v.adapter.writeSector(sector, buf)
}

// allocate finds the next free cluster and returns it. It does not mark the
// cluster's FAT cell; callers write EOC or a chain link themselves.
//
// Unlike the embedded original, which advances lastAllocatedSector and
// decrements freeSectorCount before confirming a cell is actually free, this
// implementation only commits those updates once a free cell is genuinely
// found, so a failed scan leaves FSInfo untouched.
func (v *Volume) allocate() (uint32, error) {
	if v.freeSectorCount == 0 {
		return 0, errors.ErrOpenNoSpace
	}

	totalClusters := v.geo.TotalDataSectors + 2
	start := v.lastAllocatedSector + 1
	if start < 2 {
		start = 2
	}

	for i := uint32(0); i < v.geo.TotalDataSectors; i++ {
		candidate := start + i
		if candidate >= totalClusters {
			candidate -= v.geo.TotalDataSectors
		}

		entry, err := v.readFATEntry(candidate)
		if err != nil {
			return 0, err
		}
		if entry == 0 {
			v.lastAllocatedSector = candidate
			v.freeSectorCount--
			if err := v.writeFSInfo(); err != nil {
				return 0, err
			}
			return candidate, nil
		}
	}

	return 0, errors.ErrOpenNoSpace
}

// writeFSInfo persists the in-memory free-sector count and allocation cursor
// to volume-relative sector 1. It is called after every allocation, matching
// the embedded original's eager-write discipline.
func (v *Volume) writeFSInfo() error {
	buf := v.sectorBuf[:]
	if err := v.adapter.readSector(1, buf); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[488:492], v.freeSectorCount)
	binary.LittleEndian.PutUint32(buf[492:496], v.lastAllocatedSector)
	return v.adapter.writeSector(1, buf)
}

// freeChain walks a cluster chain starting at head and marks every cluster
// in it free, updating FreeSectorCount as it goes.
func (v *Volume) freeChain(head uint32) error {
	cluster := head
	for !IsEndOfChain(cluster) && cluster != 0 {
		next, err := v.readFATEntry(cluster)
		if err != nil {
			return err
		}
		if err := v.writeFATEntry(cluster, 0); err != nil {
			return err
		}
		v.freeSectorCount++
		cluster = next
	}
	return v.writeFSInfo()
}
