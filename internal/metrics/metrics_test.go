package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordsStoredTotalIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test", reg)

	m.RecordsStoredTotal.WithLabelValues("users").Inc()
	m.RecordsStoredTotal.WithLabelValues("users").Inc()
	m.RecordsStoredTotal.WithLabelValues("groups").Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "adtrails_records_stored_total" {
			continue
		}
		found = true
		for _, metric := range mf.Metric {
			if labelValue(metric, "category") == "users" && metric.Counter.GetValue() != 2 {
				t.Fatalf("expected users=2, got %v", metric.Counter.GetValue())
			}
		}
	}
	if !found {
		t.Fatalf("records_stored_total metric family not found")
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
