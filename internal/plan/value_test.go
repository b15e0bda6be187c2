package plan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalar_Int(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int
		ok       bool
	}{
		{name: "int", input: 42, expected: 42, ok: true},
		{name: "whole float", input: 8080.0, expected: 8080, ok: true},
		{name: "fractional float", input: 1.5, expected: 1, ok: false},
		{name: "huge float", input: 1e300, ok: false},
		{name: "huge negative float", input: -1e300, ok: false},
		{name: "max int boundary", input: float64(math.MaxInt), ok: false},
		{name: "nan", input: math.NaN(), ok: false},
		{name: "numeric string", input: "3000", expected: 3000, ok: true},
		{name: "word", input: "port", ok: false},
		{name: "bool", input: true, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := S(tt.input).Int()
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.expected, got)
		})
	}
}
