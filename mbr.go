package fat32sd

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrelfs/fat32sd/errors"
)

const mbrBootSignature = 0xAA55
const mbrPartitionTableOffset = 446
const mbrPartitionEntrySize = 16
const mbrPartitionTypeFAT32LBA = 0x0C

// mbrPartitionEntry is one 16-byte record from the MBR partition table.
type mbrPartitionEntry struct {
	Status         uint8
	FirstCHS       [3]byte
	PartitionType  uint8
	LastCHS        [3]byte
	FirstLBA       uint32
	SectorCount    uint32
}

func parseMBRPartitionEntry(raw []byte) mbrPartitionEntry {
	return mbrPartitionEntry{
		Status:        raw[0],
		FirstCHS:      [3]byte{raw[1], raw[2], raw[3]},
		PartitionType: raw[4],
		LastCHS:       [3]byte{raw[5], raw[6], raw[7]},
		FirstLBA:      binary.LittleEndian.Uint32(raw[8:12]),
		SectorCount:   binary.LittleEndian.Uint32(raw[12:16]),
	}
}

// SetPartition reads the MBR at sector 0 and selects partition index (0-3)
// as the volume this driver will mount against. It requires FeaturePartition
// to be enabled in the Volume's Config.
func (v *Volume) SetPartition(index int) error {
	if !v.config.Features.HasPartition() {
		return errors.ErrOpenInvalidMode.WithMessage("partition support is not enabled")
	}
	if index < 0 || index > 3 {
		return errors.ErrPartitionInvalidNumber.WithMessage(fmt.Sprintf("got %d", index))
	}

	buf := make([]byte, SectorSize)
	unshifted := &blockAdapter{provider: v.adapter.provider, partitionStart: 0}
	if err := unshifted.readSector(0, buf); err != nil {
		return err
	}

	signature := binary.LittleEndian.Uint16(buf[510:512])
	if signature != mbrBootSignature {
		return errors.ErrPartitionBadBootSignature.WithMessage(
			fmt.Sprintf("expected 0x%04X, got 0x%04X", mbrBootSignature, signature))
	}

	offset := mbrPartitionTableOffset + index*mbrPartitionEntrySize
	entry := parseMBRPartitionEntry(buf[offset : offset+mbrPartitionEntrySize])

	if entry.PartitionType != mbrPartitionTypeFAT32LBA {
		return errors.ErrPartitionUnknownType.WithMessage(
			fmt.Sprintf("partition %d has type 0x%02X, expected 0x%02X", index, entry.PartitionType, mbrPartitionTypeFAT32LBA))
	}
	if entry.SectorCount == 0 {
		return errors.ErrPartitionEmpty.WithMessage(fmt.Sprintf("partition %d has zero sectors", index))
	}

	v.adapter.partitionStart = entry.FirstLBA
	return nil
}
