package stats

import (
	"path/filepath"

	"gonum.org/v1/gonum/stat"
)

// BenchmarkSeedResult is one seeded run of a benchmark.
type BenchmarkSeedResult struct {
	Seed        int64   `json:"seed"`
	RunID       string  `json:"run_id"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	Improvement float64 `json:"improvement"`
}

type BenchmarkSummary struct {
	BenchmarkID     string                `json:"benchmark_id"`
	PopulationSize  int                   `json:"population_size"`
	Generations     int                   `json:"generations"`
	CreatedAtUTC    string                `json:"created_at_utc"`
	Results         []BenchmarkSeedResult `json:"results"`
	FinalBestMean   float64               `json:"final_best_mean"`
	FinalBestStd    float64               `json:"final_best_std"`
	FinalBestMax    float64               `json:"final_best_max"`
	FinalBestMin    float64               `json:"final_best_min"`
	MeanImprovement float64               `json:"mean_improvement"`
	MinImprovement  float64               `json:"min_improvement"`
	Passed          bool                  `json:"passed"`
}

// Summarize fills the aggregate fields from Results. The benchmark passes when
// the mean improvement reaches MinImprovement.
func (s *BenchmarkSummary) Summarize() {
	finals := make([]float64, 0, len(s.Results))
	improvements := make([]float64, 0, len(s.Results))
	for _, result := range s.Results {
		finals = append(finals, result.FinalBest)
		improvements = append(improvements, result.Improvement)
	}
	s.FinalBestMean, s.FinalBestStd, s.FinalBestMax, s.FinalBestMin = SeriesStats(finals)
	if len(improvements) > 0 {
		s.MeanImprovement = stat.Mean(improvements, nil)
	} else {
		s.MeanImprovement = 0
	}
	s.Passed = len(s.Results) > 0 && s.MeanImprovement >= s.MinImprovement
}

// SeriesStats returns the mean, population standard deviation and extrema of
// values; all zero for an empty series.
func SeriesStats(values []float64) (mean, std, max, min float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	mean, std = stat.PopMeanStdDev(values, nil)
	max = values[0]
	min = values[0]
	for _, value := range values[1:] {
		if value > max {
			max = value
		}
		if value < min {
			min = value
		}
	}
	return mean, std, max, min
}

func WriteBenchmarkSummary(dir string, summary BenchmarkSummary) error {
	return writeJSON(filepath.Join(dir, benchmarkSummaryFile), summary)
}

func ReadBenchmarkSummary(baseDir, id string) (BenchmarkSummary, bool, error) {
	var summary BenchmarkSummary
	ok, err := readJSON(filepath.Join(baseDir, id, benchmarkSummaryFile), &summary)
	if err != nil || !ok {
		return BenchmarkSummary{}, ok, err
	}
	return summary, true, nil
}
