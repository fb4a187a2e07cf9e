// Package distance provides the vector distance functions used by the ANN
// collaborators.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricInnerProduct: 1 - dot(a, b)
//   - MetricCosine: inner product over L2-normalized vectors
//
// Lower values always mean "more similar", so results can be ordered
// closest-first regardless of the metric.
//
// # Usage
//
//	fn, err := distance.Provider(distance.MetricL2)
//	d := fn(a, b)
package distance
