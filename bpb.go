package fat32sd

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrelfs/fat32sd/errors"
)

const fsInfoLeadSignature = 0x41615252
const fsInfoStructSignature = 0x61417272
const fsInfoTrailSignature = 0xAA550000

// geometry holds the volume layout derived from the boot sector at mount
// time. Every other component addresses sectors and clusters in terms of
// these fields.
type geometry struct {
	ReservedSectorCount uint32
	FatSize             uint32
	RootCluster         uint32
	NumberOfFats        uint8
	FirstDataSector     uint32
	TotalDataSectors    uint32
	LastFatEntryIndex   uint32
	TotalSectors        uint32
	EndOfChainMarker    uint32
}

// rawBootSector is the subset of the FAT32 BPB this driver inspects.
type rawBootSector struct {
	JumpBoot            byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumberOfFats        uint8
	TotalSectors16      uint16
	FatSize16           uint16
	TotalSectors32      uint32
	FatSize32           uint32
	RootCluster         uint32
}

func parseRawBootSector(buf []byte) rawBootSector {
	return rawBootSector{
		JumpBoot:            buf[0],
		BytesPerSector:      binary.LittleEndian.Uint16(buf[11:13]),
		SectorsPerCluster:   buf[13],
		ReservedSectorCount: binary.LittleEndian.Uint16(buf[14:16]),
		NumberOfFats:        buf[16],
		TotalSectors16:      binary.LittleEndian.Uint16(buf[19:21]),
		FatSize16:           binary.LittleEndian.Uint16(buf[22:24]),
		TotalSectors32:      binary.LittleEndian.Uint32(buf[32:36]),
		FatSize32:           binary.LittleEndian.Uint32(buf[36:40]),
		RootCluster:         binary.LittleEndian.Uint32(buf[44:48]),
	}
}

// Mount reads the boot sector, FAT, and FSInfo sector and populates the
// Volume's in-memory geometry and free-space accounting. It must be called
// (after SetPartition, if partitioning is in use) before any file operation.
func (v *Volume) Mount() error {
	buf := v.sectorBuf[:]

	if err := v.adapter.readSector(0, buf); err != nil {
		return err
	}
	raw := parseRawBootSector(buf)

	if raw.JumpBoot != 0xEB {
		return errors.ErrMountInvalidBootJump.WithMessage(fmt.Sprintf("got 0x%02X", raw.JumpBoot))
	}
	if raw.BytesPerSector != SectorSize {
		return errors.ErrMountBadSectorSize.WithMessage(fmt.Sprintf("got %d", raw.BytesPerSector))
	}
	if raw.SectorsPerCluster != 1 {
		return errors.ErrMountBadClusterSize.WithMessage(fmt.Sprintf("got %d", raw.SectorsPerCluster))
	}
	if raw.TotalSectors16 != 0 || raw.FatSize16 != 0 {
		return errors.ErrMountNotFAT32.WithMessage("16-bit total-sectors/FAT-size fields are nonzero")
	}
	if raw.NumberOfFats != 1 {
		return errors.ErrMountMultipleFATs.WithMessage(fmt.Sprintf("got %d", raw.NumberOfFats))
	}

	g := geometry{
		ReservedSectorCount: uint32(raw.ReservedSectorCount),
		FatSize:             raw.FatSize32,
		RootCluster:         raw.RootCluster,
		NumberOfFats:        raw.NumberOfFats,
		TotalSectors:        raw.TotalSectors32,
	}
	g.FirstDataSector = g.ReservedSectorCount + g.FatSize
	g.TotalDataSectors = g.TotalSectors - g.FirstDataSector
	g.LastFatEntryIndex = g.TotalDataSectors % fatEntriesPerSector
	v.geo = g

	// FAT entry 1 carries the formatter-chosen end-of-chain marker.
	entry1, err := v.readFATEntryRaw(1)
	if err != nil {
		return err
	}
	v.geo.EndOfChainMarker = entry1 & 0x0FFFFFFF

	if err := v.adapter.readSector(1, buf); err != nil {
		return err
	}
	lead := binary.LittleEndian.Uint32(buf[0:4])
	structSig := binary.LittleEndian.Uint32(buf[484:488])
	if lead != fsInfoLeadSignature || structSig != fsInfoStructSignature {
		return errors.ErrMountBadFSInfoSignature.WithMessage(
			fmt.Sprintf("lead=0x%08X struct=0x%08X", lead, structSig))
	}
	v.freeSectorCount = binary.LittleEndian.Uint32(buf[488:492])
	v.lastAllocatedSector = binary.LittleEndian.Uint32(buf[492:496])

	v.mounted = true
	return nil
}
