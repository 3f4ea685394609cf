// Package validator checks the bits returned by a completed job.
//
// The entropy test is a coarse balance heuristic: it only verifies that
// neither symbol is heavily over-represented. It is not an entropy estimator
// and gives no cryptographic guarantee; min-entropy assessment (for example
// NIST SP 800-90B) is out of its reach.
package validator

import (
	"fmt"
	"math/big"

	"github.com/qrandom/qrng/internal/job"
)

// MinorityThreshold is the minimal share of the least frequent symbol for
// the balance check to pass.
const MinorityThreshold = 0.25

// Report is derived from the bits of a done job.
type Report struct {
	BitLength    int
	Zeros        int
	Ones         int
	DecimalValue *big.Int
	OnesRatio    float64
	// EntropyPass is the result of the balance check, see the package documentation.
	EntropyPass bool
}

// Decimal returns the base 10 representation of the generated number.
func (r *Report) Decimal() string {
	return r.DecimalValue.String()
}

// Validate builds the report of j. j must be done and its bits must be
// exactly as long as the requested bit length.
func Validate(j *job.Job) (*Report, error) {
	bits, ok := j.Result()
	if !ok {
		return nil, NewErrMalformedResult(j.ID(), fmt.Sprintf("job is %s, not done", j.Status()))
	}
	return ValidateBits(j.ID(), bits, j.Spec().BitLength())
}

// ValidateBits is Validate for raw bits.
func ValidateBits(jobID, bits string, bitLength int) (*Report, error) {
	if len(bits) != bitLength {
		return nil, NewErrMalformedResult(jobID, fmt.Sprintf("got %d bits, expected %d", len(bits), bitLength))
	}

	zeros, ones := 0, 0
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '0':
			zeros++
		case '1':
			ones++
		default:
			return nil, NewErrMalformedResult(jobID, fmt.Sprintf("unexpected character %q at position %d", bits[i], i))
		}
	}

	value, ok := new(big.Int).SetString(bits, 2)
	if !ok {
		return nil, NewErrMalformedResult(jobID, "bits are not a binary literal")
	}

	return &Report{
		BitLength:    bitLength,
		Zeros:        zeros,
		Ones:         ones,
		DecimalValue: value,
		OnesRatio:    float64(ones) / float64(bitLength),
		EntropyPass:  float64(min(zeros, ones))/float64(bitLength) >= MinorityThreshold,
	}, nil
}
