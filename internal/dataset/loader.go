// Package dataset loads labelled simulation runs and partitions them into
// leakage-free training and evaluation sets.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tepstack/tep-sentinel/internal/models"
)

// Metadata columns expected ahead of the sensor channels.
const (
	colFault = "faultNumber"
	colRun   = "simulationRun"
	colStep  = "sample"
)

// LoadRuns reads every *.csv file under dir and groups rows into simulation
// runs keyed by faultNumber and simulationRun. Rows of one run must appear
// in step order within their file, as the simulator exports them.
func LoadRuns(dir string) ([]models.SimulationRun, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("scan dataset dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no csv files found in %s", dir)
	}
	sort.Strings(paths)

	runs := make(map[string]*models.SimulationRun)
	order := make([]string, 0)
	for _, path := range paths {
		if err := loadFile(path, runs, &order); err != nil {
			return nil, err
		}
	}

	out := make([]models.SimulationRun, 0, len(order))
	for _, key := range order {
		out = append(out, *runs[key])
	}
	return out, nil
}

func loadFile(path string, runs map[string]*models.SimulationRun, order *[]string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	layout, err := resolveLayout(header)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", path, line, err)
		}
		line++

		sample, fault, runNo, err := layout.parse(record)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}

		key := fmt.Sprintf("%d_%d", fault, runNo)
		run, ok := runs[key]
		if !ok {
			run = &models.SimulationRun{ID: key, FaultID: fault}
			runs[key] = run
			*order = append(*order, key)
		}
		if fault != models.NormalLabel && run.FaultID == models.NormalLabel {
			run.FaultID = fault
		}
		run.Samples = append(run.Samples, sample)
	}
}

// rowLayout maps metadata and channel columns to record positions.
type rowLayout struct {
	fault    int
	run      int
	step     int
	channels []int
}

func resolveLayout(header []string) (rowLayout, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	layout := rowLayout{fault: -1, run: -1, step: -1}
	var ok bool
	if layout.fault, ok = index[colFault]; !ok {
		return rowLayout{}, fmt.Errorf("missing column %s", colFault)
	}
	if layout.run, ok = index[colRun]; !ok {
		return rowLayout{}, fmt.Errorf("missing column %s", colRun)
	}
	if layout.step, ok = index[colStep]; !ok {
		return rowLayout{}, fmt.Errorf("missing column %s", colStep)
	}

	for _, channel := range models.SensorChannels() {
		pos, ok := index[channel]
		if !ok {
			return rowLayout{}, fmt.Errorf("missing sensor column %s", channel)
		}
		layout.channels = append(layout.channels, pos)
	}
	return layout, nil
}

func (l rowLayout) parse(record []string) (models.Sample, int, int, error) {
	fault, err := strconv.Atoi(record[l.fault])
	if err != nil {
		return models.Sample{}, 0, 0, fmt.Errorf("bad %s value %q", colFault, record[l.fault])
	}
	if fault < models.NormalLabel || fault > models.MaxFaultID {
		return models.Sample{}, 0, 0, fmt.Errorf("fault id %d out of range", fault)
	}
	runNo, err := strconv.Atoi(record[l.run])
	if err != nil {
		return models.Sample{}, 0, 0, fmt.Errorf("bad %s value %q", colRun, record[l.run])
	}
	step, err := strconv.Atoi(record[l.step])
	if err != nil {
		return models.Sample{}, 0, 0, fmt.Errorf("bad %s value %q", colStep, record[l.step])
	}

	values := make([]float64, len(l.channels))
	for i, pos := range l.channels {
		v, err := strconv.ParseFloat(record[pos], 64)
		if err != nil {
			return models.Sample{}, 0, 0, fmt.Errorf("bad sensor value %q in column %d", record[pos], pos)
		}
		values[i] = v
	}

	return models.Sample{Step: step, Label: fault, Values: values}, fault, runNo, nil
}
