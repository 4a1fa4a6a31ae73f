package geo

import (
	"math"
	"testing"

	"github.com/shiva/orbit/internal/model"
)

func TestHaversineKm_SamePoint(t *testing.T) {
	loc := model.Location{Lat: 28.7041, Lon: 77.1025}
	got := HaversineKm(loc, loc)
	if got != 0 {
		t.Errorf("HaversineKm(same point) = %v, want 0", got)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Connaught Place to IGI Airport (~15 km great-circle)
	connaught := model.Location{Lat: 28.6315, Lon: 77.2167}
	igi := model.Location{Lat: 28.5562, Lon: 77.0889}
	got := HaversineKm(connaught, igi)
	wantMin, wantMax := 14.0, 20.0
	if got < wantMin || got > wantMax {
		t.Errorf("HaversineKm(Connaught→IGI) = %.2f km, want between %.1f and %.1f", got, wantMin, wantMax)
	}
}

func TestHaversineM(t *testing.T) {
	a := model.Location{Lat: 0, Lon: 0}
	b := model.Location{Lat: 0.001, Lon: 0}
	km := HaversineKm(a, b)
	m := HaversineM(a, b)
	if math.Abs(m-km*1000) > 0.01 {
		t.Errorf("HaversineM = %v, want HaversineKm*1000 = %v", m, km*1000)
	}
}

func TestHaversineM_DebounceBoundary(t *testing.T) {
	// ~20m north of the origin — the default MIN_MOVEMENT_METERS boundary.
	a := model.Location{Lat: 10.000, Lon: 10.000}
	b := model.Location{Lat: 10.00018, Lon: 10.000}
	got := HaversineM(a, b)
	if got < 15 || got > 25 {
		t.Errorf("HaversineM(~20m apart) = %.1fm, want close to 20m", got)
	}
}
