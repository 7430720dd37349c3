package similarity

import (
	"errors"
	"math"

	"github.com/lumapix/lumapix/internal/database/types"
)

// Metric selects how paired numeric vectors are compared.
type Metric string

const (
	// MetricCosine compares vectors by normalized dot product.
	MetricCosine Metric = "cosine"
	// MetricPearson compares vectors by correlation coefficient,
	// treating the two vectors as paired samples.
	MetricPearson Metric = "pearson"
)

// ErrMissingSignal indicates a pair has no usable comparison data. It always
// resolves to a zero contribution, never propagates to the end consumer.
var ErrMissingSignal = errors.New("no usable comparison data")

// EXIF fields are divided by these scales so all fields share a comparable
// range before a metric is applied.
const (
	isoScale      = 6400.0
	apertureScale = 32.0
	focalScale    = 600.0
	exposureScale = 30.0
)

// Cosine returns the cosine similarity of two vectors. Symmetric in its
// arguments.
func Cosine(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrMissingSignal
	}

	if len(a) != len(b) {
		return 0, ErrMissingSignal
	}

	var dot, normA, normB float64

	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, ErrMissingSignal
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Pearson returns the correlation coefficient between two vectors treated as
// paired samples. Symmetric in its arguments.
func Pearson(a, b []float64) (float64, error) {
	if len(a) < 2 || len(a) != len(b) {
		return 0, ErrMissingSignal
	}

	n := float64(len(a))

	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}

	meanA /= n
	meanB /= n

	var cov, varA, varB float64

	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0, ErrMissingSignal
	}

	return cov / (math.Sqrt(varA) * math.Sqrt(varB)), nil
}

// Compare applies the selected metric to two vectors.
func Compare(a, b []float64, metric Metric) (float64, error) {
	if metric == MetricPearson {
		return Pearson(a, b)
	}

	return Cosine(a, b)
}

// exifVectors extracts the numeric EXIF fields present on both photos,
// scaled to a common range. Fields missing on either side are ignored.
func exifVectors(a, b *types.Photo) ([]float64, []float64) {
	fields := []struct {
		valA  *float64
		valB  *float64
		scale float64
	}{
		{a.ISO, b.ISO, isoScale},
		{a.Aperture, b.Aperture, apertureScale},
		{a.FocalLen, b.FocalLen, focalScale},
		{a.Exposure, b.Exposure, exposureScale},
	}

	var vecA, vecB []float64

	for _, f := range fields {
		if f.valA == nil || f.valB == nil {
			continue
		}

		vecA = append(vecA, *f.valA/f.scale)
		vecB = append(vecB, *f.valB/f.scale)
	}

	return vecA, vecB
}

const earthRadiusKM = 6371.0

// haversineKM returns the great-circle distance between two coordinate pairs
// in kilometers.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180.0

	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1*rad)*math.Cos(lat2*rad)*sinLon*sinLon

	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// locationScore converts a distance into a similarity in (0,1]: identical
// coordinates score 1.0 and the score decays toward 0 past the radius.
func locationScore(distanceKM, radiusKM float64) float64 {
	if radiusKM <= 0 {
		radiusKM = 1
	}

	return math.Exp(-distanceKM / radiusKM)
}
