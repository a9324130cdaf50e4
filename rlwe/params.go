// Package rlwe implements the ciphertext and key material of the scheme and
// the homomorphic evaluator operating on them: a ring-LWE layer over the
// degree-N power-of-two cyclotomic ring with ciphertext modulus Q and special
// key-switching modulus P, and a module-LWE layer of rank R | N used for
// compact vector ciphertexts.
package rlwe

// Ring and noise parameters. The two moduli are NTT-friendly primes
// supporting the negacyclic transform of degree N.
const (
	// LogN is the log2 of the ring degree.
	LogN = 12

	// N is the ring degree.
	N = 1 << LogN

	// Q is the ciphertext modulus (54-bit prime, Q = 1 mod 2N).
	Q uint64 = 18014398491918337

	// P is the special modulus used by key switching (55-bit prime).
	P uint64 = 36028797005856769

	// PModQ is P mod Q.
	PModQ uint64 = 22020095

	// PInvModQ is P^-1 mod Q.
	PInvModQ uint64 = 995681451208133

	// HammingWeight is the number of non-zero coefficients of the ternary
	// secret.
	HammingWeight = 2730

	// Sigma is the standard deviation of the discrete gaussian error.
	Sigma = 3.2

	// GaussianBound truncates the gaussian sampler at 6*Sigma.
	GaussianBound = 19
)

// PIR parameters. The payload grid is indexed by two encrypted one-hot
// coordinates of dimension PIRRank, and each grid cell encodes
// PIRPayloadSize bytes at two bits per coefficient.
const (
	PIRLogRank     = 10
	PIRRank        = 1 << PIRLogRank
	PIRPayloadSize = N / 4
)

// MaxThreads caps the size of the data-parallel worker fan-out used by the
// batched multiply-sum routines.
const MaxThreads = 64
