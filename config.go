package fat32sd

import (
	"github.com/kestrelfs/fat32sd/errors"
)

// Features is a bitmask of optional capabilities, modeled on the mount-flag
// bitmasks of the lineage this driver descends from. Unlike a build-tag gate,
// a disabled feature is a runtime condition: attempting to use it returns
// errors.ErrOpenInvalidMode rather than failing to compile.
type Features uint16

const (
	FeatureRead Features = 1 << iota
	FeatureWrite
	FeatureAppend
	FeatureModify
	FeatureSeekTell
	FeatureListing
	FeaturePartition
)

func (f Features) CanRead() bool      { return f&FeatureRead != 0 }
func (f Features) CanWrite() bool     { return f&FeatureWrite != 0 }
func (f Features) CanAppend() bool    { return f&FeatureAppend != 0 }
func (f Features) CanModify() bool    { return f&FeatureModify != 0 }
func (f Features) CanSeekTell() bool  { return f&FeatureSeekTell != 0 }
func (f Features) CanList() bool      { return f&FeatureListing != 0 }
func (f Features) HasPartition() bool { return f&FeaturePartition != 0 }

// FeaturesReadOnly, FeaturesReadWrite, and FeaturesFull are convenience
// presets mirroring the common configurations of the embedded original: a
// pure reader, a reader/writer/appender, and everything enabled.
const FeaturesReadOnly = FeatureRead | FeatureListing
const FeaturesReadWrite = FeatureRead | FeatureWrite | FeatureAppend | FeatureSeekTell | FeatureListing
const FeaturesFull = FeaturesReadWrite | FeatureModify | FeaturePartition

// Config describes the compile-time choices the embedded original expressed
// as preprocessor switches: which operations are available, and how many
// files may be open simultaneously.
type Config struct {
	Features     Features
	MaxOpenFiles int
}

// Validate checks that the feature combination is internally consistent.
// It must be called (directly, or via NewVolume) before a Config is used.
func (c Config) Validate() error {
	if c.MaxOpenFiles < 1 {
		return errors.ErrInvalidArgument.WithMessage("MaxOpenFiles must be at least 1")
	}
	if !c.Features.CanRead() && !c.Features.CanWrite() && !c.Features.CanAppend() {
		return errors.ErrInvalidArgument.WithMessage(
			"at least one of FeatureRead, FeatureWrite, or FeatureAppend must be enabled")
	}
	if c.Features.CanModify() && !c.Features.CanWrite() {
		return errors.ErrInvalidArgument.WithMessage("FeatureModify requires FeatureWrite")
	}
	if (c.Features.CanAppend() || c.Features.CanModify()) && !c.Features.CanSeekTell() {
		return errors.ErrInvalidArgument.WithMessage(
			"FeatureAppend and FeatureModify both require FeatureSeekTell")
	}
	return nil
}
