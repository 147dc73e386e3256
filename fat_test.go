package fat32sd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEndOfChainRangePredicate(t *testing.T) {
	assert.True(t, IsEndOfChain(0x0FFFFFF8))
	assert.True(t, IsEndOfChain(0x0FFFFFFF))
	assert.True(t, IsEndOfChain(0xFFFFFFFF)) // high 4 bits ignored
	assert.False(t, IsEndOfChain(0x0FFFFFF7))
	assert.False(t, IsEndOfChain(0))
}

func TestFatEntryLocationAddressing(t *testing.T) {
	v := &Volume{geo: geometry{ReservedSectorCount: 32}}

	sector, index := v.fatEntryLocation(2)
	assert.EqualValues(t, 32, sector)
	assert.EqualValues(t, 2, index)

	sector, index = v.fatEntryLocation(130)
	assert.EqualValues(t, 33, sector)
	assert.EqualValues(t, 2, index)
}
