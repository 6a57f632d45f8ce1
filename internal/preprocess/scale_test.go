package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"dataset-engine/internal/models"
)

func TestStandardScale(t *testing.T) {
	r := require.New(t)

	scaled, mean, std := StandardScale([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	r.InDelta(5, mean, 1e-12)
	r.InDelta(2, std, 1e-12)
	r.InDelta(0, stat.Mean(scaled, nil), 1e-12)
	_, gotStd := stat.PopMeanStdDev(scaled, nil)
	r.InDelta(1, gotStd, 1e-12)
}

func TestMinMaxScale(t *testing.T) {
	r := require.New(t)

	scaled, min, max := MinMaxScale([]float64{10, 20, 15, 30})

	r.Equal(10.0, min)
	r.Equal(30.0, max)
	r.Equal([]float64{0, 0.5, 0.25, 1}, scaled)
}

func TestFitScaler_Constant(t *testing.T) {
	tests := []struct {
		name   string
		method models.NormalizationMethod
		want   float64
	}{
		{name: "standard", method: models.NormalizeStandard, want: 0},
		{name: "minmax", method: models.NormalizeMinMax, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)

			s := FitScaler([]float64{3, 3, 3}, tt.method)
			out := s.TransformAll([]float64{3, 3, 3})
			for _, v := range out {
				r.False(math.IsNaN(v))
				r.Equal(tt.want, v)
			}
		})
	}
}

func TestFitScaler_Empty(t *testing.T) {
	r := require.New(t)

	standard := FitScaler(nil, models.NormalizeStandard)
	r.Equal(1.0, standard.Std)
	r.Equal(0.0, standard.Mean)

	minmax := FitScaler([]float64{math.NaN()}, models.NormalizeMinMax)
	r.Equal(0.0, minmax.Min)
	r.Equal(0.0, minmax.Max)
}

func TestFitScaler_IgnoresNaN(t *testing.T) {
	r := require.New(t)

	s := FitScaler([]float64{1, math.NaN(), 3}, models.NormalizeStandard)
	r.InDelta(2, s.Mean, 1e-12)
	r.InDelta(1, s.Std, 1e-12)
	r.True(math.IsNaN(s.Transform(math.NaN())))
}

func TestScaler_None(t *testing.T) {
	s := FitScaler([]float64{1, 2}, models.NormalizeNone)
	require.Equal(t, 7.0, s.Transform(7))
}
