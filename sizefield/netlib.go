//go:build netlib
// +build netlib

package sizefield

import (
	"gonum.org/v1/gonum/blas/blas64"
	netblas "gonum.org/v1/netlib/blas/netlib"
)

// Metric and inertia eigen solves go through blas64; the netlib build tag
// routes them to the system CBLAS.
func init() {
	blas64.Use(netblas.Implementation{})
}
