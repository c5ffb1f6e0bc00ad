package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var runPattern = regexp.MustCompile(`^run_(\d+)$`)

// RunDir is the folder of one engine run:
//
//	{basePath}/{YYYY-MM-DD}/run_N/
type RunDir struct {
	basePath  string
	date      string
	runNumber int
	path      string
}

// NewRunDir picks the next free run number for the date of now and creates its folder.
func NewRunDir(basePath string, now time.Time) (*RunDir, error) {
	date := now.Format("2006-01-02")

	runNumber, err := nextRunNumber(filepath.Join(basePath, date))
	if err != nil {
		return nil, fmt.Errorf("failed to determine run number: %w", err)
	}

	dir := &RunDir{
		basePath:  basePath,
		date:      date,
		runNumber: runNumber,
	}
	dir.path = filepath.Join(basePath, date, dir.ID())

	if err := os.MkdirAll(dir.path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run folder: %w", err)
	}

	return dir, nil
}

// nextRunNumber scans datePath for run_N folders and returns the next number.
func nextRunNumber(datePath string) (int, error) {
	runs, err := listRuns(datePath)
	if err != nil {
		return 0, err
	}

	if len(runs) == 0 {
		return 1, nil
	}

	last, _ := strconv.Atoi(runs[len(runs)-1][len("run_"):])

	return last + 1, nil
}

func listRuns(datePath string) ([]string, error) {
	entries, err := os.ReadDir(datePath)
	if os.IsNotExist(err) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read date directory: %w", err)
	}

	runs := []string{}

	for _, entry := range entries {
		if entry.IsDir() && runPattern.MatchString(entry.Name()) {
			runs = append(runs, entry.Name())
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		numI, _ := strconv.Atoi(runs[i][len("run_"):])
		numJ, _ := strconv.Atoi(runs[j][len("run_"):])

		return numI < numJ
	})

	return runs, nil
}

// ListRuns returns the run IDs recorded under basePath for date, oldest first.
func ListRuns(basePath, date string) ([]string, error) {
	return listRuns(filepath.Join(basePath, date))
}

// ID returns the run ID, e.g. "run_1".
func (d *RunDir) ID() string {
	return fmt.Sprintf("run_%d", d.runNumber)
}

// Date returns the run date in YYYY-MM-DD format.
func (d *RunDir) Date() string {
	return d.date
}

// Path returns the run folder.
func (d *RunDir) Path() string {
	return d.path
}

// FilePath returns the path of a file inside the run folder.
func (d *RunDir) FilePath(name string) string {
	return filepath.Join(d.path, name)
}
