package fat32sd

import (
	"io"

	"github.com/gocarina/gocsv"
)

// directoryCSVRow is the CSV projection of a root-directory entry, used by
// DumpDirectoryCSV for offline inspection of a mounted volume.
type directoryCSVRow struct {
	Name         string `csv:"name"`
	Size         uint32 `csv:"size_bytes"`
	FirstCluster uint32 `csv:"first_cluster"`
}

// DumpDirectoryCSV writes every live root-directory entry to w as CSV, in
// on-disk order. It requires FeatureListing, the same as List.
func (v *Volume) DumpDirectoryCSV(w io.Writer) error {
	var rows []directoryCSVRow
	err := v.List(func(entry DirectoryEntryInfo) error {
		rows = append(rows, directoryCSVRow{
			Name:         entry.Name,
			Size:         entry.Size,
			FirstCluster: entry.FirstCluster,
		})
		return nil
	})
	if err != nil {
		return err
	}
	return gocsv.Marshal(rows, w)
}
