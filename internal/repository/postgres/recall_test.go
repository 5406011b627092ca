package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversionRate(t *testing.T) {
	tests := []struct {
		name      string
		converted int
		total     int
		want      float64
	}{
		{"zero denominator", 0, 0, 0},
		{"no conversions", 0, 50, 0},
		{"all converted", 50, 50, 100},
		{"rounds to one decimal", 1, 3, 33.3},
		{"rounds half up", 1, 8, 12.5},
		{"two of seven", 2, 7, 28.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conversionRate(tt.converted, tt.total))
		})
	}
}
