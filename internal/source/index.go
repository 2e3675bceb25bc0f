package source

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WaveformFile is one staged waveform file.
type WaveformFile struct {
	Path    string    // full path to the file
	Name    string    // base name, recorded in the ledger
	Network string    // parsed from the name when it follows the dataselect pattern
	Station string
	Channel string
	Start   time.Time // zero when the name carries no start time
}

// Dataselect SAC naming: NET.STA.LOC.CHA.Q.YYYY.DDD.HHMMSS.SAC
// Example: TX.PB28..HHZ.M.2024.001.000000.SAC
var sacFilePattern = regexp.MustCompile(`^([^.]+)\.([^.]+)\.([^.]*)\.([^.]+)\.[A-Z]\.(\d{4})\.(\d{3})\.(\d{6})\.SAC$`)

// IsSACFile reports whether name has a .SAC extension (any case).
func IsSACFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".sac")
}

// ParseWaveformFilename extracts station and start time from a dataselect
// file name. ok is false for names in any other form.
func ParseWaveformFilename(name string) (WaveformFile, bool) {
	base := filepath.Base(name)
	m := sacFilePattern.FindStringSubmatch(base)
	if m == nil {
		return WaveformFile{Name: base}, false
	}

	year, _ := strconv.Atoi(m[5])
	jday, _ := strconv.Atoi(m[6])
	hh, _ := strconv.Atoi(m[7][0:2])
	mm, _ := strconv.Atoi(m[7][2:4])
	ss, _ := strconv.Atoi(m[7][4:6])
	if jday < 1 || jday > 366 || hh > 23 || mm > 59 || ss > 60 {
		return WaveformFile{Name: base}, false
	}

	return WaveformFile{
		Name:    base,
		Network: m[1],
		Station: m[2],
		Channel: m[4],
		Start:   time.Date(year, time.January, jday, hh, mm, ss, 0, time.UTC),
	}, true
}

// WaveformIndex is an ordered list of staged waveform files.
type WaveformIndex struct {
	files []WaveformFile
}

// IndexDir walks dir and indexes every SAC file beneath it.
func IndexDir(dir string) (*WaveformIndex, error) {
	idx := &WaveformIndex{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsSACFile(d.Name()) {
			return nil
		}
		idx.AddFile(path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", dir, err)
	}
	idx.Sort()
	return idx, nil
}

// AddFile adds path to the index.
func (idx *WaveformIndex) AddFile(path string) {
	f, _ := ParseWaveformFilename(path)
	f.Path = path
	idx.files = append(idx.files, f)
}

// Sort orders files by parsed start time, then by name.
func (idx *WaveformIndex) Sort() {
	sort.SliceStable(idx.files, func(i, j int) bool {
		a, b := idx.files[i], idx.files[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Name < b.Name
	})
}

// Files returns the indexed files in order.
func (idx *WaveformIndex) Files() []WaveformFile {
	return idx.files
}

// Count returns the number of indexed files.
func (idx *WaveformIndex) Count() int {
	return len(idx.files)
}
