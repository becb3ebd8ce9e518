package strategy

import (
	"errors"
	"testing"

	"github.com/ixarek/o3cripto/pkg/types"
)

func TestBuildSelectsStrategy(t *testing.T) {
	s, err := Build("", Params{CandleInterval: 15})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if s.Name() != ModeCombined {
		t.Fatalf("expected combined default, got %s", s.Name())
	}
	if interval, limit := s.Window(); interval != 15 || limit != 50 {
		t.Fatalf("unexpected combined window %d/%d", interval, limit)
	}

	s, err = Build(" Half_Year ", Params{TakeProfitK: 3})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if s.Name() != ModeHalfYear {
		t.Fatalf("expected half_year, got %s", s.Name())
	}
	if interval, limit := s.Window(); interval != 240 || limit < 200 {
		t.Fatalf("unexpected half-year window %d/%d", interval, limit)
	}

	if _, err := Build("breakout", Params{}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestHalfYearEvaluateAttachesProtection(t *testing.T) {
	d, err := NewHalfYear(2).Evaluate(candlesFromCloses(series(1, 259)))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if d.Action != types.ActionBuy || d.Protection == nil {
		t.Fatalf("expected Buy with protection, got %+v", d)
	}
}

func TestCombinedEvaluateHoldsOnDisagreement(t *testing.T) {
	d, err := NewCombined(5).Evaluate(candlesFromCloses(series(100, 40)))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if d.Action != types.ActionHold || d.Protection != nil {
		t.Fatalf("expected Hold without protection, got %+v", d)
	}
}
