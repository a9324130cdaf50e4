package ring

import (
	"fmt"
	"math/bits"
)

// MulMod returns a*b mod q using a full 128-bit intermediate product.
func MulMod(a, b, q uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi%q, lo, q)
	return rem
}

// ModExp performs the modular exponentiation x^e mod q.
func ModExp(x, e, q uint64) (result uint64) {
	result = 1
	x %= q
	for e > 0 {
		if e&1 == 1 {
			result = MulMod(result, x, q)
		}
		x = MulMod(x, x, q)
		e >>= 1
	}
	return
}

// IsPrime applies the deterministic Miller-Rabin test for 64-bit integers.
func IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	smallPrimes := []uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}
	for _, p := range smallPrimes {
		if n%p == 0 {
			return n == p
		}
	}
	d := n - 1
	r := 0
	for d&1 == 0 {
		d >>= 1
		r++
	}
	for _, a := range smallPrimes {
		x := ModExp(a, d, n)
		if x == 1 || x == n-1 {
			continue
		}
		composite := true
		for i := 0; i < r-1; i++ {
			x = MulMod(x, x, n)
			if x == n-1 {
				composite = false
				break
			}
		}
		if composite {
			return false
		}
	}
	return true
}

// trialDivisionBound bounds the divisors tested by Factorize. It is large
// enough to fully factor q-1 for the moduli used by the scheme.
const trialDivisionBound = 1 << 20

// Factorize returns the distinct prime factors of n by trial division, with
// a primality check on the remaining cofactor.
func Factorize(n uint64) (factors []uint64, err error) {
	if n&1 == 0 {
		factors = append(factors, 2)
		for n&1 == 0 {
			n >>= 1
		}
	}
	for d := uint64(3); d <= trialDivisionBound && d*d <= n; d += 2 {
		if n%d == 0 {
			factors = append(factors, d)
			for n%d == 0 {
				n /= d
			}
		}
	}
	if n > 1 {
		if !IsPrime(n) {
			return nil, fmt.Errorf("cannot factorize: composite cofactor %d", n)
		}
		factors = append(factors, n)
	}
	return factors, nil
}

// PrimitiveRoot returns the smallest primitive root of the prime q, given
// the distinct prime factors of q-1.
func PrimitiveRoot(q uint64, factors []uint64) uint64 {
	for g := uint64(2); ; g++ {
		isRoot := true
		for _, factor := range factors {
			if ModExp(g, (q-1)/factor, q) == 1 {
				isRoot = false
				break
			}
		}
		if isRoot {
			return g
		}
	}
}
