package circuit

import (
	"fmt"
	"strings"
)

const (
	MinBitLength = 8
	MaxBitLength = 256
	// DefaultBitLength is used when the caller gives no usable length.
	DefaultBitLength = MinBitLength
)

// CircuitSpec describes one job. The zero value is not a valid spec, use Build.
type CircuitSpec struct {
	bitLength int
}

// Build returns the description of a circuit with bitLength qubits.
func Build(bitLength int) (CircuitSpec, error) {
	if bitLength < MinBitLength || bitLength > MaxBitLength {
		return CircuitSpec{}, NewErrInvalidLength(bitLength)
	}
	return CircuitSpec{bitLength: bitLength}, nil
}

// Clamp brings n into [MinBitLength, MaxBitLength].
func Clamp(n int) int {
	return max(MinBitLength, min(MaxBitLength, n))
}

func (c CircuitSpec) BitLength() int {
	return c.bitLength
}

// QASM renders the circuit as an OpenQASM 2.0 program: a Hadamard gate on
// every qubit followed by the measurement of each qubit into its own bit.
func (c CircuitSpec) QASM() string {
	var b strings.Builder
	b.WriteString("OPENQASM 2.0;\n")
	b.WriteString("include \"qelib1.inc\";\n")
	fmt.Fprintf(&b, "qreg q[%d];\n", c.bitLength)
	fmt.Fprintf(&b, "creg meas[%d];\n", c.bitLength)
	b.WriteString("h q;\n")
	b.WriteString("measure q -> meas;\n")
	return b.String()
}

func (c CircuitSpec) String() string {
	return fmt.Sprintf("circuit(%d qubits)", c.bitLength)
}
