package vectorindex

import "math"

// squaredL2 calculates the squared Euclidean distance between two vectors of equal length
func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

// cosineSimilarity is the raw cosine of the angle between a and b, the basis
// of the flat_cosine backend. A zero vector has similarity 0.
func cosineSimilarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance maps cosine similarity onto [0, 2], smaller is closer.
func cosineDistance(a, b []float32) float32 {
	d := 1 - cosineSimilarity(a, b)
	switch {
	case d < 0:
		d = 0
	case d > 2:
		d = 2
	}
	return float32(d)
}
