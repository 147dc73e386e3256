package fat32sd

import (
	"fmt"

	"github.com/kestrelfs/fat32sd/errors"
)

// SectorSize is the only sector size this driver supports.
const SectorSize = 512

// BlockProvider is the external collaborator responsible for getting bytes
// on and off the physical medium. Unlike the embedded original, which treats
// its block layer as infallible, this interface returns an error so a
// failing provider can be surfaced instead of assumed away; the driver
// itself never retries a failed call.
type BlockProvider interface {
	ReadSector(sector uint32, buf []byte) error
	WriteSector(sector uint32, buf []byte) error
}

// ClockProvider supplies the FAT-encoded date and time stamped into
// directory entries on creation and modification.
type ClockProvider interface {
	FATDate() uint16
	FATTime() uint16
}

// blockAdapter applies the partition offset (component A) in front of a
// BlockProvider. Every other component in this module addresses sectors in
// volume-relative terms and never touches partitionStart directly.
type blockAdapter struct {
	provider       BlockProvider
	partitionStart uint32
}

func (b *blockAdapter) readSector(sector uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector buffer must be %d bytes, got %d", SectorSize, len(buf)))
	}
	if err := b.provider.ReadSector(b.partitionStart+sector, buf); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (b *blockAdapter) writeSector(sector uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector buffer must be %d bytes, got %d", SectorSize, len(buf)))
	}
	if err := b.provider.WriteSector(b.partitionStart+sector, buf); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// clusterToSector converts a data cluster number to a volume-relative
// sector number, per the fixed SectorsPerCluster=1 assumption.
func clusterToSector(cluster, firstDataSector uint32) uint32 {
	return (cluster - 2) + firstDataSector
}
