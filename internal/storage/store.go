package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	metadataFile = "metadata.json"
	statsFile    = "stats.csv"
)

var ErrNoSamples = errors.New("storage: run has no samples")

// Store keeps headless runs on disk, one directory per run.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Preset    string             `json:"preset,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Rows      int                `json:"rows"`
	Cols      int                `json:"cols"`
	Depth     int                `json:"depth"`
	Mode      string             `json:"mode"`
	Binning   string             `json:"binning"`
	Injection string             `json:"injection"`
	Sources   int                `json:"sources"`
	Ticks     int                `json:"ticks"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Sample is the state of a session after one tick.
type Sample struct {
	Tick       uint64 `json:"tick"`
	Generation uint64 `json:"generation"`
	Population [3]int `json:"population"`
	Driven     bool   `json:"driven"`
}

// Total is the live-cell count summed over channels.
func (s Sample) Total() int {
	return s.Population[0] + s.Population[1] + s.Population[2]
}

// Save writes meta and samples as a new run and returns its ID. Metrics are
// computed from samples and merged into meta.Metrics.
func (s *Store) Save(meta RunMetadata, samples []Sample) (string, error) {
	meta.ID = fmt.Sprintf("run_%s", uuid.NewString()[:8])
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Ticks = len(samples)
	if meta.Metrics == nil {
		meta.Metrics = make(map[string]float64)
	}
	for k, v := range Summarize(samples) {
		meta.Metrics[k] = v
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, statsFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write([]string{"tick", "generation", "pop_r", "pop_g", "pop_b", "driven"}); err != nil {
		return "", err
	}
	for _, sm := range samples {
		row := []string{
			strconv.FormatUint(sm.Tick, 10),
			strconv.FormatUint(sm.Generation, 10),
			strconv.Itoa(sm.Population[0]),
			strconv.Itoa(sm.Population[1]),
			strconv.Itoa(sm.Population[2]),
			strconv.FormatBool(sm.Driven),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s metadata: %w", runID, err)
	}
	return &meta, nil
}

// LoadSamples reads the per-tick statistics of a run. Malformed rows are
// skipped.
func (s *Store) LoadSamples(runID string) ([]Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 6 {
			continue
		}
		var sm Sample
		var perr error
		parseU := func(v string) uint64 {
			n, err := strconv.ParseUint(v, 10, 64)
			perr = errors.Join(perr, err)
			return n
		}
		parseI := func(v string) int {
			n, err := strconv.Atoi(v)
			perr = errors.Join(perr, err)
			return n
		}
		sm.Tick = parseU(rec[0])
		sm.Generation = parseU(rec[1])
		sm.Population = [3]int{parseI(rec[2]), parseI(rec[3]), parseI(rec[4])}
		sm.Driven, err = strconv.ParseBool(rec[5])
		if perr != nil || err != nil {
			continue
		}
		samples = append(samples, sm)
	}
	return samples, nil
}

type exportData struct {
	RunMetadata
	Samples []Sample `json:"samples"`
}

// ExportJSON writes a run's metadata and samples as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportData{RunMetadata: *meta, Samples: samples})
}

// Summarize computes population metrics over samples.
func Summarize(samples []Sample) map[string]float64 {
	if len(samples) == 0 {
		return map[string]float64{}
	}

	lo, hi := samples[0].Total(), samples[0].Total()
	sum, driven := 0.0, 0
	for _, sm := range samples {
		t := sm.Total()
		lo, hi = min(lo, t), max(hi, t)
		sum += float64(t)
		if sm.Driven {
			driven++
		}
	}
	n := float64(len(samples))
	return map[string]float64{
		"population_final": float64(samples[len(samples)-1].Total()),
		"population_mean":  sum / n,
		"population_min":   float64(lo),
		"population_max":   float64(hi),
		"driven_fraction":  float64(driven) / n,
	}
}

// Series extracts the total population of each sample for plotting.
func Series(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, sm := range samples {
		out[i] = float64(sm.Total())
	}
	return out
}
