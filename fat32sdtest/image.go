// Package fat32sdtest builds synthetic in-memory FAT32 volumes for tests,
// mirroring the way the lineage's own testing package wraps a byte slice in
// an io.ReadWriteSeeker for use as a fake disk image.
package fat32sdtest

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/kestrelfs/fat32sd/internal/profiles"
	"github.com/noxer/bytewriter"
	"github.com/xaionaro-go/bytesextra"
)

const sectorSize = 512
const fatEntriesPerSector = sectorSize / 4
const endOfChainMarker = 0x0FFFFFF8

// Image is a freshly formatted, empty FAT32 volume backed entirely by
// memory, along with the geometry used to build it.
type Image struct {
	Stream              io.ReadWriteSeeker
	TotalSectors        uint32
	ReservedSectorCount uint32
	FatSize             uint32
	RootCluster         uint32
	FreeSectorCount     uint32
}

// BuildOptions configures a synthetic image. CapacityMiB selects a known
// profile from internal/profiles; pass 0 to use Reserved/FatSize/
// TotalSectors directly.
type BuildOptions struct {
	CapacityMiB         uint
	ReservedSectorCount uint32
	FatSize             uint32
	TotalSectors        uint32
}

// NewImage constructs a formatted volume image in memory: a boot sector,
// an FSInfo sector, a single FAT (all cells zero except entry 1, which
// carries the end-of-chain marker, and entry 2, which is claimed by the
// root directory), and one zeroed root directory cluster.
func NewImage(opts BuildOptions) (*Image, error) {
	reserved, fatSize, totalSectors := opts.ReservedSectorCount, opts.FatSize, opts.TotalSectors
	if opts.CapacityMiB != 0 {
		p, ok := profiles.Lookup(opts.CapacityMiB)
		if ok {
			reserved, fatSize, totalSectors = p.ReservedSectorCount, p.FatSize, p.TotalSectors
		}
	}
	if reserved == 0 {
		reserved = 32
	}
	if fatSize == 0 {
		fatSize = 1016
	}
	if totalSectors == 0 {
		totalSectors = 131072
	}

	rootCluster := uint32(2)
	firstDataSector := reserved + fatSize
	totalDataSectors := totalSectors - firstDataSector
	freeSectorCount := totalDataSectors - 1 // root directory claims cluster 2

	buf := make([]byte, int(totalSectors)*sectorSize)

	if err := writeBootSector(buf, reserved, fatSize, totalSectors, rootCluster); err != nil {
		return nil, err
	}
	if err := writeFSInfo(buf, freeSectorCount, rootCluster); err != nil {
		return nil, err
	}
	writeFATCell(buf, reserved, 0, 0x0FFFFFF8) // entry 0: media descriptor + reserved bits
	writeFATCell(buf, reserved, 1, endOfChainMarker)
	writeFATCell(buf, reserved, rootCluster, endOfChainMarker)
	// The root directory sector is already zero-filled, which is a valid
	// "empty directory" on-disk representation.

	return &Image{
		Stream:              bytesextra.NewReadWriteSeeker(buf),
		TotalSectors:        totalSectors,
		ReservedSectorCount: reserved,
		FatSize:             fatSize,
		RootCluster:         rootCluster,
		FreeSectorCount:     freeSectorCount,
	}, nil
}

// writeBootSector lays out the BPB fields this driver cares about, writing
// sequentially into a bytewriter-wrapped sector slice and padding the gaps
// between fields with zeroes, the same pattern the lineage's formatter uses
// to build an on-disk record field by field.
func writeBootSector(buf []byte, reserved, fatSize, totalSectors, rootCluster uint32) error {
	w := bytewriter.New(buf[0:sectorSize])

	w.Write([]byte{0xEB, 0x58, 0x90})     // jump + nop
	w.Write(bytes.Repeat([]byte{0}, 8))   // OEM name, offset 3-10
	binary.Write(w, binary.LittleEndian, uint16(sectorSize))
	w.Write([]byte{1})                    // SectorsPerCluster
	binary.Write(w, binary.LittleEndian, uint16(reserved))
	w.Write([]byte{1})                    // NumberOfFats
	w.Write(bytes.Repeat([]byte{0}, 2))   // RootEntryCount, offset 17-18
	w.Write(bytes.Repeat([]byte{0}, 2))   // TotalSectors16, offset 19-20
	w.Write([]byte{0xF8})                 // media descriptor
	w.Write(bytes.Repeat([]byte{0}, 2))   // FatSize16, offset 22-23
	w.Write(bytes.Repeat([]byte{0}, 8))   // SectorsPerTrack/NumHeads/HiddenSectors, offset 24-31
	binary.Write(w, binary.LittleEndian, totalSectors)
	binary.Write(w, binary.LittleEndian, fatSize)
	w.Write(bytes.Repeat([]byte{0}, 4))   // ExtFlags/FSVersion, offset 40-43
	binary.Write(w, binary.LittleEndian, rootCluster)
	w.Write(bytes.Repeat([]byte{0}, 462)) // FSInfo sector, reserved, boot code, offset 48-509
	binary.Write(w, binary.LittleEndian, uint16(0xAA55))

	return nil
}

// writeFSInfo lays out the FSInfo sector sequentially, the same way.
func writeFSInfo(buf []byte, freeSectorCount, lastAllocatedSector uint32) error {
	w := bytewriter.New(buf[sectorSize : 2*sectorSize])

	binary.Write(w, binary.LittleEndian, uint32(0x41615252)) // lead signature
	w.Write(bytes.Repeat([]byte{0}, 480))                    // reserved1, offset 4-483
	binary.Write(w, binary.LittleEndian, uint32(0x61417272)) // struct signature
	binary.Write(w, binary.LittleEndian, freeSectorCount)
	binary.Write(w, binary.LittleEndian, lastAllocatedSector)
	w.Write(bytes.Repeat([]byte{0}, 12))                     // reserved2, offset 496-507
	binary.Write(w, binary.LittleEndian, uint32(0xAA550000)) // trail signature

	return nil
}

func writeFATCell(buf []byte, reserved, cluster, value uint32) {
	sector := reserved + cluster/fatEntriesPerSector
	index := cluster % fatEntriesPerSector
	off := int(sector)*sectorSize + int(index)*4
	binary.LittleEndian.PutUint32(buf[off:off+4], value)
}

// StreamBlockProvider adapts an io.ReadWriteSeeker (such as Image.Stream)
// to the fat32sd.BlockProvider interface by seeking to the sector's byte
// offset and then reading or writing one sector.
type StreamBlockProvider struct {
	rw io.ReadWriteSeeker
}

// NewStreamBlockProvider wraps rw as a BlockProvider. rw must support
// seeking to arbitrary sector-aligned offsets.
func NewStreamBlockProvider(rw io.ReadWriteSeeker) *StreamBlockProvider {
	return &StreamBlockProvider{rw: rw}
}

func (s *StreamBlockProvider) ReadSector(sector uint32, buf []byte) error {
	if _, err := s.rw.Seek(int64(sector)*sectorSize, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(s.rw, buf)
	return err
}

func (s *StreamBlockProvider) WriteSector(sector uint32, buf []byte) error {
	if _, err := s.rw.Seek(int64(sector)*sectorSize, io.SeekStart); err != nil {
		return err
	}
	_, err := s.rw.Write(buf)
	return err
}

// FixedClock is a ClockProvider that always reports the same instant; handy
// for assertions that need a predictable write-time/write-date stamp.
type FixedClock struct {
	Date uint16
	Time uint16
}

func (c FixedClock) FATDate() uint16 { return c.Date }
func (c FixedClock) FATTime() uint16 { return c.Time }
