package coverage

import "sort"

// Gap identifies one model falling short on one coverage axis.
type Gap struct {
	// Model is the model name.
	Model string `yaml:"model" json:"model"`

	// Path is the model's file path from the manifest.
	Path string `yaml:"path" json:"path"`

	// Axis is the coverage dimension the model falls short on.
	Axis Axis `yaml:"axis" json:"axis"`

	// Coverage is the model's measurement on that axis. Binary axes
	// report 0/1 or 1/1.
	Coverage Metric `yaml:"coverage" json:"coverage"`
}

// GapsOptions configures gap listing.
type GapsOptions struct {
	// Axis restricts the listing to one axis; the zero value covers all.
	Axis Axis

	// Threshold is the percentage below which a model is listed.
	// Models meeting it exactly are not gaps.
	Threshold float64

	// Limit caps the number of gaps returned (0 = no limit).
	Limit int
}

// DefaultGapsOptions lists everything short of full coverage.
func DefaultGapsOptions() GapsOptions {
	return GapsOptions{Threshold: 100}
}

// GapsReport lists the models below a coverage threshold, worst first.
// It reports standings only and makes no suggestions about which tests
// to add.
type GapsReport struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Axis      Axis    `yaml:"axis,omitempty" json:"axis,omitempty"`
	Gaps      []Gap   `yaml:"gaps" json:"gaps"`
	Total     int     `yaml:"total" json:"total"`
}

// FindGaps scans computed statistics for models below the threshold on
// the selected axes. The result is sorted ascending by percentage;
// ties keep the input model order so the listing is stable.
func FindGaps(stats *Stats, opts GapsOptions) *GapsReport {
	axes := []Axis{AxisColumnTest, AxisUnitTest, AxisContract}
	if opts.Axis != "" {
		axes = []Axis{opts.Axis}
	}

	var gaps []Gap
	for _, mc := range stats.Models {
		for _, axis := range axes {
			metric := modelMetric(mc, axis)
			if metric.Percent >= opts.Threshold {
				continue
			}
			gaps = append(gaps, Gap{
				Model:    mc.Name,
				Path:     mc.Path,
				Axis:     axis,
				Coverage: metric,
			})
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].Coverage.Percent < gaps[j].Coverage.Percent
	})

	if opts.Limit > 0 && len(gaps) > opts.Limit {
		gaps = gaps[:opts.Limit]
	}

	return &GapsReport{
		Threshold: opts.Threshold,
		Axis:      opts.Axis,
		Gaps:      gaps,
		Total:     len(gaps),
	}
}

// modelMetric projects one model's coverage onto an axis. The binary
// axes are expressed as 0/1 and 1/1 metrics.
func modelMetric(mc ModelCoverage, axis Axis) Metric {
	switch axis {
	case AxisUnitTest:
		return binaryMetric(mc.HasUnitTests)
	case AxisContract:
		return binaryMetric(mc.ContractEnforced)
	default:
		return mc.ColumnTest
	}
}

func binaryMetric(covered bool) Metric {
	if covered {
		return Metric{Tested: 1, Total: 1, Percent: 100}
	}
	return Metric{Tested: 0, Total: 1}
}
