package extractors

import (
	"math"

	"github.com/miradorstack/mirador-noc/internal/models"
)

// DefaultSigma is the number of standard deviations a sample must sit from the mean.
const DefaultSigma = 3.0

// relTolerance keeps a sample lying exactly on the threshold from being lost to rounding.
const relTolerance = 1e-9

// Detector flags statistically extreme samples with a z-score rule.
type Detector struct {
	Sigma float64
}

// NewDetector returns a Detector; sigma <= 0 selects DefaultSigma.
func NewDetector(sigma float64) Detector {
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	return Detector{Sigma: sigma}
}

// Detect returns samples whose distance from the window mean is at least
// Sigma sample standard deviations. Fewer than two samples or a flat series
// yield no anomalies.
func (d Detector) Detect(samples []models.Sample) []models.Anomaly {
	if len(samples) < 2 {
		return []models.Anomaly{}
	}
	mean, std := meanStd(samples)
	return detectWith(samples, mean, std, d.sigma())
}

func (d Detector) sigma() float64 {
	if d.Sigma <= 0 {
		return DefaultSigma
	}
	return d.Sigma
}

func detectWith(samples []models.Sample, mean, std, sigma float64) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return anomalies
	}
	threshold := sigma * std
	cutoff := threshold - relTolerance*threshold
	for _, s := range samples {
		dev := math.Abs(s.Value - mean)
		if dev >= cutoff {
			anomalies = append(anomalies, models.Anomaly{
				Timestamp: s.Timestamp,
				Value:     s.Value,
				Deviation: dev / std,
				Threshold: threshold,
			})
		}
	}
	return anomalies
}

// meanStd returns the mean and the sample (n-1) standard deviation.
func meanStd(samples []models.Sample) (float64, float64) {
	n := float64(len(samples))
	mean := 0.0
	for _, s := range samples {
		mean += s.Value
	}
	mean /= n

	variance := 0.0
	for _, s := range samples {
		variance += math.Pow(s.Value-mean, 2)
	}
	variance /= n - 1
	return mean, math.Sqrt(variance)
}
