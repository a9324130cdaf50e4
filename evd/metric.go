// Package evd implements the scheme layer of the encrypted vector database:
// the client-side key generation, encoding and encryption, the server-side
// similarity pipeline over cached queries and key blocks, and the PIR read
// path over the encoded payload grid.
package evd

import (
	"fmt"

	"github.com/snuhcs-course/swpp-2025-project-team-07/utils/bignum"
)

// Metric identifies the similarity metric of a collection.
type Metric uint8

const (
	// MetricIP scores by raw inner product.
	MetricIP Metric = iota
	// MetricCosine scores by cosine similarity; inputs are expected to be
	// normalized.
	MetricCosine
	// MetricL2 is reserved. It has no scale table and is rejected by
	// ScalesFor until one is specified.
	MetricL2
)

// String returns the protocol name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricIP:
		return "IP"
	case MetricCosine:
		return "COSINE"
	case MetricL2:
		return "L2"
	}
	return fmt.Sprintf("Metric(%d)", uint8(m))
}

// ParseMetric parses a protocol metric name.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "IP":
		return MetricIP, nil
	case "COSINE":
		return MetricCosine, nil
	}
	return 0, fmt.Errorf("unsupported metric type: %q", s)
}

// Scales groups the fixed-point scaling factors of a collection. The output
// scale is the product of the query and key scales, as the inner product
// multiplies one ciphertext of each.
type Scales struct {
	Query  float64
	Key    float64
	Output float64
}

// ScalesFor returns the scaling factors for a metric and query privacy mode.
func ScalesFor(metric Metric, queryEncrypted bool) (s Scales, err error) {
	switch metric {
	case MetricIP:
		if queryEncrypted {
			s.Query, s.Key = bignum.Exp2(22), bignum.Exp2(22)
		} else {
			s.Query, s.Key = bignum.Exp2(16), bignum.Exp2(27)
		}
	case MetricCosine:
		if queryEncrypted {
			s.Query, s.Key = bignum.Exp2(26.25), bignum.Exp2(26.25)
		} else {
			s.Query, s.Key = bignum.Exp2(20), bignum.Exp2(32.5)
		}
	default:
		return Scales{}, fmt.Errorf("metric %v has no scale table", metric)
	}
	s.Output = s.Query * s.Key
	return s, nil
}

// PIR retrieval scales applied to the two one-hot coordinate ciphertexts.
var (
	PIRFirstScale  = bignum.Exp2(25.25)
	PIRSecondScale = bignum.Exp2(25.25)
)
