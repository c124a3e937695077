package metrics

import (
	"fmt"
)

// Value returns the current value of a counter or gauge family registered on
// the custom registry, summed across label sets. Histograms report their
// sample count. name is the fully qualified metric name.
func Value(name string) (float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		return total, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
}

// FullName qualifies a metric name with the current namespace and subsystem.
func FullName(name string) string {
	return globalManager.namespace + "_" + subsystem + "_" + name
}
