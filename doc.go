// Package fat32sd implements a compact FAT32 filesystem driver for a single
// volume: one FAT, one sector per cluster, 8.3 short names, files confined
// to the root directory. It is designed to sit directly on a block-addressable
// storage device through the BlockProvider interface.
//
// A Volume is not safe for concurrent use from multiple goroutines. Callers
// are expected to serialize access; the driver itself holds a single shared
// sector buffer and assumes exactly one operation is in flight at a time.
package fat32sd
