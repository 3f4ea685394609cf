// Package circuit builds the backend-agnostic descriptor of a random bit job:
// N independent qubits, each put in superposition and measured once.
package circuit
