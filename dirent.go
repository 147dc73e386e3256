package fat32sd

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/kestrelfs/fat32sd/errors"
)

const direntSize = 32
const direntsPerSector = SectorSize / direntSize
const direntFreeMarker = 0xE5
const direntEndMarker = 0x00
const attrReadOnly = 0x01
const attrHidden = 0x02
const attrSystem = 0x04
const attrVolumeID = 0x08
const attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID

// dirEntry is the in-memory form of a 32-byte on-disk directory record.
type dirEntry struct {
	Name         string
	Attributes   uint8
	FirstCluster uint32
	FileSize     uint32
	WriteTime    uint16
	WriteDate    uint16
}

// formatName converts "NAME.EXT" to its on-disk 8.3, space-padded, 11-byte
// representation. Short names are uppercase by the format; the characters
// are stored as given and their case is not changed. Grounded on the same
// stem/extension split and padding convention as the lineage's short-name
// encoder, widened from 6.3 to 8.3.
func formatName(name string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	parts := strings.SplitN(name, ".", 2)
	stem := parts[0]
	if len(stem) == 0 || len(stem) > 8 {
		return out, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("filename stem must be 1-8 characters: %q", stem))
	}
	copy(out[0:8], stem)

	if len(parts) == 2 {
		ext := parts[1]
		if len(ext) > 3 {
			return out, errors.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("filename extension must be at most 3 characters: %q", ext))
		}
		copy(out[8:11], ext)
	}

	return out, nil
}

// parseName converts an 11-byte on-disk name back to "NAME.EXT" form.
func parseName(raw [11]byte) string {
	stem := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

func parseDirEntry(raw []byte) dirEntry {
	var rawName [11]byte
	copy(rawName[:], raw[0:11])

	clusterHigh := binary.LittleEndian.Uint16(raw[20:22])
	clusterLow := binary.LittleEndian.Uint16(raw[26:28])

	return dirEntry{
		Name:         parseName(rawName),
		Attributes:   raw[11],
		WriteTime:    binary.LittleEndian.Uint16(raw[22:24]),
		WriteDate:    binary.LittleEndian.Uint16(raw[24:26]),
		FirstCluster: uint32(clusterHigh)<<16 | uint32(clusterLow),
		FileSize:     binary.LittleEndian.Uint32(raw[28:32]),
	}
}

func encodeDirEntry(e dirEntry) ([direntSize]byte, error) {
	var out [direntSize]byte
	name, err := formatName(e.Name)
	if err != nil {
		return out, err
	}
	copy(out[0:11], name[:])
	out[11] = e.Attributes
	binary.LittleEndian.PutUint16(out[20:22], uint16(e.FirstCluster>>16))
	binary.LittleEndian.PutUint16(out[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(out[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(out[26:28], uint16(e.FirstCluster&0xFFFF))
	binary.LittleEndian.PutUint32(out[28:32], e.FileSize)
	return out, nil
}

// dirLocation names a directory slot: the sector it lives in and its index
// (0-15) within that sector.
type dirLocation struct {
	Sector uint32
	Index  int
}

// walkRootDir invokes visit for every directory sector in the root chain, in
// order, stopping early if visit returns stop=true. It does not interpret
// slot contents; callers read visit's buf argument to do that.
func (v *Volume) walkRootDir(visit func(sector uint32, buf []byte) (stop bool, err error)) error {
	cluster := v.geo.RootCluster
	buf := make([]byte, SectorSize)

	for {
		sector := clusterToSector(cluster, v.geo.FirstDataSector)
		if err := v.adapter.readSector(sector, buf); err != nil {
			return err
		}

		stop, err := visit(sector, buf)
		if err != nil || stop {
			return err
		}

		next, err := v.readFATEntry(cluster)
		if err != nil {
			return err
		}
		if IsEndOfChain(next) {
			return nil
		}
		cluster = next
	}
}

// find locates a short name in the root directory. Per Open's needs, a
// long-filename entry is skipped rather than treated as an error: the
// remainder of that sector is abandoned and the walk continues at the next
// sector, so names in later sectors stay reachable. Entries that follow a
// long-name fragment within the same sector are not examined.
func (v *Volume) find(name string) (dirLocation, dirEntry, error) {
	var loc dirLocation
	var entry dirEntry
	found := false

	err := v.walkRootDir(func(sector uint32, buf []byte) (bool, error) {
		for i := 0; i < direntsPerSector; i++ {
			raw := buf[i*direntSize : (i+1)*direntSize]
			switch raw[0] {
			case direntEndMarker:
				return true, nil
			case direntFreeMarker:
				continue
			}
			if raw[11]&attrLongName == attrLongName {
				// Skip the rest of this sector's usable content.
				return false, nil
			}
			candidate := parseDirEntry(raw)
			if candidate.Name == name {
				loc = dirLocation{Sector: sector, Index: i}
				entry = candidate
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return loc, entry, err
	}
	if !found {
		return loc, entry, errors.ErrOpenNotFound.WithMessage(name)
	}
	return loc, entry, nil
}

// allocateSlot finds the first free directory slot in the root chain,
// extending the chain with a freshly zeroed cluster if none is available.
func (v *Volume) allocateSlot() (dirLocation, error) {
	var loc dirLocation
	found := false
	var lastCluster uint32

	err := v.walkRootDir(func(sector uint32, buf []byte) (bool, error) {
		lastCluster = sector - v.geo.FirstDataSector + 2
		for i := 0; i < direntsPerSector; i++ {
			raw := buf[i*direntSize]
			if raw == direntFreeMarker || raw == direntEndMarker {
				loc = dirLocation{Sector: sector, Index: i}
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return loc, err
	}
	if found {
		return loc, nil
	}

	newCluster, err := v.allocate()
	if err != nil {
		return loc, err
	}
	if err := v.writeFATEntry(lastCluster, newCluster); err != nil {
		return loc, err
	}
	if err := v.writeFATEntry(newCluster, v.geo.EndOfChainMarker); err != nil {
		return loc, err
	}

	zero := make([]byte, SectorSize)
	newSector := clusterToSector(newCluster, v.geo.FirstDataSector)
	if err := v.adapter.writeSector(newSector, zero); err != nil {
		return loc, err
	}

	return dirLocation{Sector: newSector, Index: 0}, nil
}

func (v *Volume) writeDirEntry(loc dirLocation, entry dirEntry) error {
	buf := make([]byte, SectorSize)
	if err := v.adapter.readSector(loc.Sector, buf); err != nil {
		return err
	}
	encoded, err := encodeDirEntry(entry)
	if err != nil {
		return err
	}
	copy(buf[loc.Index*direntSize:(loc.Index+1)*direntSize], encoded[:])
	return v.adapter.writeSector(loc.Sector, buf)
}

func (v *Volume) updateDirEntrySize(loc dirLocation, size uint32) error {
	buf := make([]byte, SectorSize)
	if err := v.adapter.readSector(loc.Sector, buf); err != nil {
		return err
	}
	off := loc.Index * direntSize
	binary.LittleEndian.PutUint32(buf[off+28:off+32], size)
	if v.clock != nil {
		binary.LittleEndian.PutUint16(buf[off+22:off+24], v.clock.FATTime())
		binary.LittleEndian.PutUint16(buf[off+24:off+26], v.clock.FATDate())
	}
	return v.adapter.writeSector(loc.Sector, buf)
}

// DirectoryEntryInfo is the listing record handed to List's callback.
type DirectoryEntryInfo struct {
	Name         string
	Size         uint32
	FirstCluster uint32
}

// List enumerates the root directory's live entries in on-disk order,
// calling callback once per entry, then returns nil once the end-of-
// directory marker is reached. A nil return is itself the end-of-listing
// signal; there is no separate sentinel value delivered through callback.
// Unlike find, which treats a long-filename entry as a reason to skip
// ahead, List surfaces it as an error: it is a user-facing enumeration and
// an unsupported construct should be visible rather than silently dropped.
func (v *Volume) List(callback func(DirectoryEntryInfo) error) error {
	if !v.config.Features.CanList() {
		return errors.ErrOpenInvalidMode.WithMessage("listing is not enabled")
	}

	return v.walkRootDir(func(sector uint32, buf []byte) (bool, error) {
		for i := 0; i < direntsPerSector; i++ {
			raw := buf[i*direntSize : (i+1)*direntSize]
			switch raw[0] {
			case direntEndMarker:
				return true, nil
			case direntFreeMarker:
				continue
			}
			if raw[11]&attrLongName == attrLongName {
				return true, errors.ErrListLongNameEncountered
			}
			entry := parseDirEntry(raw)
			if err := callback(DirectoryEntryInfo{
				Name:         entry.Name,
				Size:         entry.FileSize,
				FirstCluster: entry.FirstCluster,
			}); err != nil {
				return true, err
			}
		}
		return false, nil
	})
}
