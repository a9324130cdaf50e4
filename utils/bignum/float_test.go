package bignum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExp2(t *testing.T) {
	require.Equal(t, 4.0, Exp2(2))
	require.Equal(t, float64(1<<22), Exp2(22))
	require.InEpsilon(t, math.Pow(2, 26.25), Exp2(26.25), 1e-15)
	require.InEpsilon(t, math.Pow(2, 32.5), Exp2(32.5), 1e-15)
}

func TestPow(t *testing.T) {
	z, _ := Pow(NewFloat(3), NewFloat(4)).Float64()
	require.Equal(t, 81.0, z)
}
