package fat32sd_test

import (
	"testing"

	"github.com/kestrelfs/fat32sd"
	fat32errors "github.com/kestrelfs/fat32sd/errors"
	"github.com/kestrelfs/fat32sd/fat32sdtest"
	"github.com/stretchr/testify/require"
)

func mountedVolume(t *testing.T, features fat32sd.Features) (*fat32sd.Volume, *fat32sdtest.Image) {
	t.Helper()
	img, err := fat32sdtest.NewImage(fat32sdtest.BuildOptions{CapacityMiB: 64})
	require.NoError(t, err)

	provider := fat32sdtest.NewStreamBlockProvider(img.Stream)
	clock := fat32sdtest.FixedClock{Date: 0x5A21, Time: 0x4821}

	v, err := fat32sd.NewVolume(provider, clock, fat32sd.Config{
		Features:     features,
		MaxOpenFiles: 4,
	})
	require.NoError(t, err)
	require.NoError(t, v.Mount())

	return v, img
}

func TestMountReportsFreeSectorsFromFormatter(t *testing.T) {
	v, img := mountedVolume(t, fat32sd.FeaturesFull)
	require.Equal(t, img.FreeSectorCount, v.FreeSectors())
}

func TestCreateWriteCloseReadRoundTrip(t *testing.T) {
	v, _ := mountedVolume(t, fat32sd.FeaturesFull)

	h, err := v.Open("HELLO.TXT", 'w')
	require.NoError(t, err)

	n, err := v.Write(h, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, v.Close(h))

	var names []string
	require.NoError(t, v.List(func(entry fat32sd.DirectoryEntryInfo) error {
		names = append(names, entry.Name)
		return nil
	}))
	require.Contains(t, names, "HELLO.TXT")

	h2, err := v.Open("HELLO.TXT", 'r')
	require.NoError(t, err)

	size, err := v.FileSize(h2)
	require.NoError(t, err)
	require.EqualValues(t, 2, size)

	buf := make([]byte, 2)
	n, err = v.Read(h2, buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf))
	require.NoError(t, v.Close(h2))
}

func TestWriteSpanningMultipleClustersRoundTrips(t *testing.T) {
	v, img := mountedVolume(t, fat32sd.FeaturesFull)

	payload := make([]byte, 513)
	for i := range payload {
		payload[i] = 0xAA
	}

	h, err := v.Open("A.BIN", 'w')
	require.NoError(t, err)
	n, err := v.Write(h, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, v.Close(h))

	require.Equal(t, img.FreeSectorCount-2, v.FreeSectors())

	h2, err := v.Open("A.BIN", 'r')
	require.NoError(t, err)
	readBack := make([]byte, len(payload))
	n, err = v.Read(h2, readBack)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
	require.NoError(t, v.Close(h2))
}

func TestAppendExtendsFileWithoutDisturbingExistingBytes(t *testing.T) {
	v, _ := mountedVolume(t, fat32sd.FeaturesFull)

	original := make([]byte, 500)
	for i := range original {
		original[i] = byte(i)
	}

	h, err := v.Open("B.BIN", 'w')
	require.NoError(t, err)
	_, err = v.Write(h, original)
	require.NoError(t, err)
	require.NoError(t, v.Close(h))

	h2, err := v.Open("B.BIN", 'a')
	require.NoError(t, err)
	_, err = v.Write(h2, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	require.NoError(t, v.Close(h2))

	h3, err := v.Open("B.BIN", 'r')
	require.NoError(t, err)
	size, err := v.FileSize(h3)
	require.NoError(t, err)
	require.EqualValues(t, 510, size)

	full := make([]byte, 510)
	_, err = v.Read(h3, full)
	require.NoError(t, err)
	require.Equal(t, original, full[:500])
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, full[500:])
	require.NoError(t, v.Close(h3))
}

func TestModifyOverwritesInPlaceAndPreservesSurroundingBytes(t *testing.T) {
	v, _ := mountedVolume(t, fat32sd.FeaturesFull)

	original := make([]byte, 1024)
	for i := range original {
		original[i] = byte(i % 256)
	}

	h, err := v.Open("C.BIN", 'w')
	require.NoError(t, err)
	_, err = v.Write(h, original)
	require.NoError(t, err)
	require.NoError(t, v.Close(h))

	h2, err := v.Open("C.BIN", 'm')
	require.NoError(t, err)
	require.NoError(t, v.Seek(h2, 600))

	patch := make([]byte, 100)
	for i := range patch {
		patch[i] = 0x55
	}
	_, err = v.Write(h2, patch)
	require.NoError(t, err)
	require.NoError(t, v.Close(h2))

	h3, err := v.Open("C.BIN", 'r')
	require.NoError(t, err)
	size, err := v.FileSize(h3)
	require.NoError(t, err)
	require.EqualValues(t, 1024, size)

	full := make([]byte, 1024)
	_, err = v.Read(h3, full)
	require.NoError(t, err)
	require.Equal(t, original[:600], full[:600])
	require.Equal(t, patch, full[600:700])
	require.Equal(t, original[700:], full[700:])
	require.NoError(t, v.Close(h3))
}

func TestSeekTellRoundTrip(t *testing.T) {
	v, _ := mountedVolume(t, fat32sd.FeaturesFull)

	h, err := v.Open("D.BIN", 'w')
	require.NoError(t, err)
	_, err = v.Write(h, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, v.Close(h))

	h2, err := v.Open("D.BIN", 'm')
	require.NoError(t, err)

	require.NoError(t, v.Seek(h2, 4))
	pos, err := v.Tell(h2)
	require.NoError(t, err)
	require.EqualValues(t, 4, pos)

	buf := make([]byte, 3)
	n, err := v.Read(h2, buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "456", string(buf))

	pos, err = v.Tell(h2)
	require.NoError(t, err)
	require.EqualValues(t, 7, pos)

	require.NoError(t, v.Close(h2))
}

func TestOpenNoFreeSlotOnceTableIsFull(t *testing.T) {
	v, _ := mountedVolume(t, fat32sd.FeaturesFull)

	for i := 0; i < 4; i++ {
		_, err := v.Open(string(rune('A'+i))+".BIN", 'w')
		require.NoError(t, err)
	}

	_, err := v.Open("E.BIN", 'w')
	require.ErrorIs(t, err, fat32errors.ErrOpenNoFreeSlot)
}
