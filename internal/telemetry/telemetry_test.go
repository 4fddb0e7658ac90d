package telemetry_test

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/atlas-tradeops/control-plane/internal/telemetry"
)

func TestRecordSignalIncrementsCounter(t *testing.T) {
	telemetry.RecordSignal("BUY")
	telemetry.RecordSignal("BUY")

	metrics, err := telemetry.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found *dto.Metric
	for _, mf := range metrics {
		if mf.GetName() != "controlplane_signalgen_signals_total" {
			continue
		}
		for _, m := range mf.Metric {
			for _, l := range m.Label {
				if l.GetName() == "signal_type" && l.GetValue() == "BUY" {
					found = m
				}
			}
		}
	}
	if found == nil {
		t.Fatalf("expected a signals_total series for signal_type=BUY")
	}
	if found.Counter.GetValue() != 2 {
		t.Fatalf("expected counter value 2, got %v", found.Counter.GetValue())
	}
}

func TestRecordRiskBreachIncrementsCounter(t *testing.T) {
	telemetry.RecordRiskBreach("MAX_POSITION_SIZE", "BLOCK")

	metrics, err := telemetry.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var total float64
	for _, mf := range metrics {
		if mf.GetName() != "controlplane_risk_breaches_total" {
			continue
		}
		for _, m := range mf.Metric {
			total += m.Counter.GetValue()
		}
	}
	if total == 0 {
		t.Fatalf("expected at least one recorded breach")
	}
}
