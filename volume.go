package fat32sd

import (
	"github.com/kestrelfs/fat32sd/errors"
)

// Volume is the top-level handle for a mounted FAT32 filesystem. It is
// constructed with NewVolume, mounted with Mount (and, optionally,
// SetPartition first), and then driven through Open/Read/Write/Seek/
// Tell/Close and the read-only List/FreeSectors/Diagnose accessors.
//
// A Volume holds a single shared 512-byte sector buffer and is not safe for
// concurrent use from multiple goroutines.
type Volume struct {
	config Config
	clock  ClockProvider

	adapter blockAdapter

	geo                 geometry
	freeSectorCount     uint32
	lastAllocatedSector uint32
	mounted             bool

	files *openFileTable

	sectorBuf [SectorSize]byte
}

// NewVolume constructs a Volume over the given block provider. clock may be
// nil, in which case created directory entries are stamped with a zero FAT
// date/time and appended or modified entries keep their previous stamp.
// Mount must be called before any other operation.
func NewVolume(provider BlockProvider, clock ClockProvider, config Config) (*Volume, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Volume{
		config:  config,
		clock:   clock,
		adapter: blockAdapter{provider: provider},
		files:   newOpenFileTable(config.MaxOpenFiles),
	}, nil
}

// FreeSectors returns the number of unallocated data clusters, as tracked
// in FSInfo.
func (v *Volume) FreeSectors() uint32 {
	return v.freeSectorCount
}

func (v *Volume) requireMounted() error {
	if !v.mounted {
		return errors.ErrInvalidArgument.WithMessage("volume is not mounted")
	}
	return nil
}
