package circuit

import "fmt"

type ErrInvalidLength struct {
	error
	BitLength int
}

func NewErrInvalidLength(bitLength int) *ErrInvalidLength {
	return &ErrInvalidLength{
		error:     fmt.Errorf("bit length %d is out of range [%d,%d]", bitLength, MinBitLength, MaxBitLength),
		BitLength: bitLength,
	}
}
