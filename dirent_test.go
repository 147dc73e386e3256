package fat32sd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNameAndParseNameRoundTrip(t *testing.T) {
	raw, err := formatName("HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "HELLO   TXT", string(raw[:]))
	assert.Equal(t, "HELLO.TXT", parseName(raw))
}

func TestFormatNameWithoutExtension(t *testing.T) {
	raw, err := formatName("README")
	require.NoError(t, err)
	assert.Equal(t, "README", parseName(raw))
}

func TestFormatNameRejectsOverlongStem(t *testing.T) {
	_, err := formatName("TOOLONGNAME.TXT")
	assert.Error(t, err)
}

func TestFormatNameRejectsOverlongExtension(t *testing.T) {
	_, err := formatName("A.LONG")
	assert.Error(t, err)
}
