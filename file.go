package fat32sd

import (
	stderrors "errors"

	"github.com/boljen/go-bitmap"
	"github.com/kestrelfs/fat32sd/errors"
)

// FileMode tags what an open handle may do, replacing the mutually
// exclusive boolean flags (isNewFile / OpenedForReading / ...) of the
// embedded original with a single enum.
type FileMode int

const (
	ModeReading FileMode = iota
	ModeCreatingNew
	ModeAppending
	ModeModifying
)

const seekToEnd = 0xFFFFFFFF

// openFile is one slot in the fixed-size open-file table.
type openFile struct {
	inUse           bool
	mode            FileMode
	name            string
	firstCluster    uint32
	cluster         uint32
	offsetInCluster uint32
	offsetInFile    uint32
	fileSize        uint32
	dir             dirLocation
}

// Handle identifies an open file returned by Open.
type Handle int

// openFileTable tracks slot occupancy with a bitmap, mirroring the
// lineage's bitmap-backed block allocator but applied to a much smaller,
// statically sized resource: the configured MaxOpenFiles slots.
type openFileTable struct {
	slots    []openFile
	occupied bitmap.Bitmap
}

func newOpenFileTable(maxOpenFiles int) *openFileTable {
	return &openFileTable{
		slots:    make([]openFile, maxOpenFiles),
		occupied: bitmap.New(maxOpenFiles),
	}
}

func (t *openFileTable) findByName(name string) (int, bool) {
	for i := range t.slots {
		if t.occupied.Get(i) && t.slots[i].name == name {
			return i, true
		}
	}
	return -1, false
}

func (t *openFileTable) allocateSlot() (int, bool) {
	for i := 0; i < len(t.slots); i++ {
		if !t.occupied.Get(i) {
			return i, true
		}
	}
	return -1, false
}

// Open opens name under the given mode ('r' read, 'w' create, 'a' append,
// 'm' modify in place) and returns a Handle for subsequent Read/Write/Seek/
// Close calls.
func (v *Volume) Open(name string, mode byte) (Handle, error) {
	if err := v.requireMounted(); err != nil {
		return 0, err
	}
	if _, exists := v.files.findByName(name); exists {
		return 0, errors.ErrOpenAlreadyOpen.WithMessage(name)
	}

	slot, ok := v.files.allocateSlot()
	if !ok {
		return 0, errors.ErrOpenNoFreeSlot
	}

	var f openFile
	f.name = name

	switch mode {
	case 'r':
		if !v.config.Features.CanRead() {
			return 0, errors.ErrOpenInvalidMode.WithMessage("read mode disabled")
		}
		_, entry, err := v.find(name)
		if err != nil {
			return 0, err
		}
		f.mode = ModeReading
		f.firstCluster = entry.FirstCluster
		f.cluster = entry.FirstCluster
		f.fileSize = entry.FileSize

	case 'w':
		if !v.config.Features.CanWrite() {
			return 0, errors.ErrOpenInvalidMode.WithMessage("write mode disabled")
		}
		if _, _, err := v.find(name); err == nil {
			return 0, errors.ErrOpenAlreadyExists.WithMessage(name)
		} else if !stderrors.Is(err, errors.ErrOpenNotFound) {
			return 0, err
		}
		cluster, err := v.allocate()
		if err != nil {
			return 0, err
		}
		if err := v.writeFATEntry(cluster, v.geo.EndOfChainMarker); err != nil {
			return 0, err
		}
		f.mode = ModeCreatingNew
		f.firstCluster = cluster
		f.cluster = cluster

	case 'a':
		if !v.config.Features.CanAppend() {
			return 0, errors.ErrOpenInvalidMode.WithMessage("append mode disabled")
		}
		loc, entry, err := v.find(name)
		if err != nil {
			return 0, err
		}
		f.mode = ModeAppending
		f.dir = loc
		f.firstCluster = entry.FirstCluster
		f.fileSize = entry.FileSize
		f.offsetInFile = entry.FileSize
		if err := v.seekFileState(&f, entry.FileSize); err != nil {
			return 0, err
		}

	case 'm':
		if !v.config.Features.CanModify() {
			return 0, errors.ErrOpenInvalidMode.WithMessage("modify mode disabled")
		}
		loc, entry, err := v.find(name)
		if err != nil {
			return 0, err
		}
		f.mode = ModeModifying
		f.dir = loc
		f.firstCluster = entry.FirstCluster
		f.cluster = entry.FirstCluster
		f.fileSize = entry.FileSize

	default:
		return 0, errors.ErrOpenInvalidMode.WithMessage(string(mode))
	}

	f.inUse = true
	v.files.slots[slot] = f
	v.files.occupied.Set(slot, true)
	return Handle(slot), nil
}

func (v *Volume) handleSlot(h Handle) (*openFile, error) {
	idx := int(h)
	if idx < 0 || idx >= len(v.files.slots) || !v.files.occupied.Get(idx) {
		return nil, errors.ErrWriteNotOpen.WithMessage("handle is not open")
	}
	return &v.files.slots[idx], nil
}

// Read fills buf from the current file position, advancing it. It returns
// the number of bytes actually transferred even when the returned error is
// non-nil.
func (v *Volume) Read(h Handle, buf []byte) (int, error) {
	if !v.config.Features.CanRead() {
		return 0, errors.ErrOpenInvalidMode.WithMessage("read mode disabled")
	}
	f, err := v.handleSlot(h)
	if err != nil {
		return 0, err
	}
	if f.mode != ModeReading && f.mode != ModeModifying {
		return 0, errors.ErrWriteReadOnly
	}

	total := 0
	remaining := len(buf)
	sector := make([]byte, SectorSize)

	for remaining > 0 {
		if f.offsetInFile >= f.fileSize {
			return total, nil
		}

		physSector := clusterToSector(f.cluster, v.geo.FirstDataSector)
		if err := v.adapter.readSector(physSector, sector); err != nil {
			return total, err
		}

		chunk := remaining
		if c := int(SectorSize - f.offsetInCluster); c < chunk {
			chunk = c
		}
		if c := int(f.fileSize - f.offsetInFile); c < chunk {
			chunk = c
		}

		copy(buf[total:total+chunk], sector[f.offsetInCluster:int(f.offsetInCluster)+chunk])
		total += chunk
		remaining -= chunk
		f.offsetInFile += uint32(chunk)
		f.offsetInCluster += uint32(chunk)

		if f.offsetInCluster == SectorSize {
			next, err := v.readFATEntry(f.cluster)
			if err != nil {
				return total, err
			}
			if IsEndOfChain(next) {
				if remaining > 0 && f.offsetInFile < f.fileSize {
					return total, errors.ErrReadFailed
				}
				return total, nil
			}
			f.cluster = next
			f.offsetInCluster = 0
		}
	}

	return total, nil
}

// Write writes buf at the current file position, growing the file and
// allocating clusters as needed. It returns the number of bytes actually
// transferred even when the returned error is non-nil.
func (v *Volume) Write(h Handle, buf []byte) (int, error) {
	f, err := v.handleSlot(h)
	if err != nil {
		return 0, err
	}
	if f.mode == ModeReading {
		return 0, errors.ErrWriteReadOnly
	}

	total := 0
	remaining := len(buf)
	sector := make([]byte, SectorSize)

	for remaining > 0 {
		// A handle positioned at offsetInCluster == SectorSize (Open('a') on
		// a file whose size is an exact multiple of 512 leaves it this way)
		// has no bytes left in the current cluster; step onto the next one,
		// allocating it if the chain doesn't already extend further, before
		// touching any sector.
		if f.offsetInCluster == SectorSize {
			var nextCluster uint32
			if f.mode == ModeModifying {
				next, err := v.readFATEntry(f.cluster)
				if err != nil {
					return total, err
				}
				if !IsEndOfChain(next) {
					nextCluster = next
				}
			}

			if nextCluster == 0 {
				newCluster, err := v.allocate()
				if err != nil {
					return total, errors.ErrWriteNoSpace.WrapError(err)
				}
				if err := v.writeFATEntry(f.cluster, newCluster); err != nil {
					return total, err
				}
				if err := v.writeFATEntry(newCluster, v.geo.EndOfChainMarker); err != nil {
					return total, err
				}
				nextCluster = newCluster
			}

			f.cluster = nextCluster
			f.offsetInCluster = 0
		}

		chunk := remaining
		if c := int(SectorSize - f.offsetInCluster); c < chunk {
			chunk = c
		}

		physSector := clusterToSector(f.cluster, v.geo.FirstDataSector)
		needsPreload := f.offsetInCluster != 0 || f.mode == ModeModifying
		if needsPreload {
			if err := v.adapter.readSector(physSector, sector); err != nil {
				return total, err
			}
		}

		copy(sector[f.offsetInCluster:int(f.offsetInCluster)+chunk], buf[total:total+chunk])
		if err := v.adapter.writeSector(physSector, sector); err != nil {
			return total, err
		}

		total += chunk
		remaining -= chunk
		f.offsetInFile += uint32(chunk)
		f.offsetInCluster += uint32(chunk)
		if f.offsetInFile > f.fileSize {
			f.fileSize = f.offsetInFile
		}
	}

	return total, nil
}

// seekFileState walks firstCluster forward to the cluster containing pos,
// used by both Seek and Open('a').
//
// When pos lands exactly on a cluster boundary at the very end of the chain
// (pos is a positive multiple of SectorSize equal to the chain's full
// length — the case Open('a') hits whenever a file's size is an exact
// nonzero multiple of 512), there is no next cluster to step onto yet: that
// position means "the tail cluster, fully written," so the walk stops one
// link short and reports offsetInCluster == SectorSize rather than
// following a chain link that doesn't exist. Write's cluster-boundary
// branch then allocates the next cluster the first time it's needed. Any
// other attempt to walk past the end of the chain is a genuine
// out-of-range seek.
func (v *Volume) seekFileState(f *openFile, pos uint32) error {
	hops := pos / SectorSize
	offsetInCluster := pos % SectorSize
	cluster := f.firstCluster

	for hops > 0 {
		next, err := v.readFATEntry(cluster)
		if err != nil {
			return err
		}
		if IsEndOfChain(next) {
			if hops == 1 && offsetInCluster == 0 {
				offsetInCluster = SectorSize
				hops = 0
				break
			}
			return errors.ErrSeekOutOfRange
		}
		cluster = next
		hops--
	}

	f.cluster = cluster
	f.offsetInCluster = offsetInCluster
	f.offsetInFile = pos
	return nil
}

// Seek moves the file position for handle h. Passing the sentinel value
// 0xFFFFFFFF seeks to end-of-file.
func (v *Volume) Seek(h Handle, pos uint32) error {
	if !v.config.Features.CanSeekTell() {
		return errors.ErrOpenInvalidMode.WithMessage("seek/tell disabled")
	}
	f, err := v.handleSlot(h)
	if err != nil {
		return err
	}
	if f.mode != ModeReading && f.mode != ModeModifying {
		return errors.ErrSeekNotSeekable
	}

	if pos == seekToEnd {
		return v.seekFileState(f, f.fileSize)
	}
	if pos >= f.fileSize {
		return errors.ErrSeekOutOfRange
	}
	return v.seekFileState(f, pos)
}

// Tell returns the current absolute byte offset for handle h.
func (v *Volume) Tell(h Handle) (uint32, error) {
	if !v.config.Features.CanSeekTell() {
		return 0, errors.ErrOpenInvalidMode.WithMessage("seek/tell disabled")
	}
	f, err := v.handleSlot(h)
	if err != nil {
		return 0, err
	}
	return f.offsetInFile, nil
}

// FileSize returns the current size, in bytes, of the open file.
func (v *Volume) FileSize(h Handle) (uint32, error) {
	f, err := v.handleSlot(h)
	if err != nil {
		return 0, err
	}
	return f.fileSize, nil
}

// Close flushes metadata for handle h (creating its directory entry for a
// newly created file, or updating size/timestamp for an appended or
// modified one) and releases the slot.
func (v *Volume) Close(h Handle) error {
	idx := int(h)
	if idx < 0 || idx >= len(v.files.slots) || !v.files.occupied.Get(idx) {
		return nil
	}
	f := &v.files.slots[idx]

	switch f.mode {
	case ModeCreatingNew:
		loc, err := v.allocateSlot()
		if err != nil {
			// The data chain was already allocated when the file was
			// opened, but it has nowhere to be recorded: free it rather
			// than leaking clusters that no directory entry will ever
			// reference.
			if freeErr := v.freeChain(f.firstCluster); freeErr != nil {
				return errors.ErrCloseCreateEntryFailed.WrapError(freeErr)
			}
			return errors.ErrCloseCreateEntryFailed.WrapError(err)
		}
		entry := dirEntry{
			Name:         f.name,
			FirstCluster: f.firstCluster,
			FileSize:     f.fileSize,
		}
		if v.clock != nil {
			entry.WriteTime = v.clock.FATTime()
			entry.WriteDate = v.clock.FATDate()
		}
		if err := v.writeDirEntry(loc, entry); err != nil {
			return err
		}
	case ModeAppending, ModeModifying:
		if err := v.updateDirEntrySize(f.dir, f.fileSize); err != nil {
			return err
		}
	}

	v.files.occupied.Set(idx, false)
	v.files.slots[idx] = openFile{}
	return nil
}
