package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaledWeightedMeanFold_ConvergesTowardValue(t *testing.T) {
	mean := float32(1.0)
	for i := 0; i < 500; i++ {
		mean = scaledWeightedMeanFold(mean, 4.0, 1.0/60.0, 1.0)
	}
	assert.InDelta(t, 4.0, mean, 0.05)
}

func TestScaledWeightedMeanFold_ZeroWeightIsNoop(t *testing.T) {
	mean := scaledWeightedMeanFold(2.0, 10.0, 0, 1.0)
	assert.Equal(t, float32(2.0), mean)
}

func TestExposureFunction_InverseToScreenValue(t *testing.T) {
	exposure := exposureFunction(0.5, 0.35)
	assert.InDelta(t, 0.35/0.5001, exposure, 1e-3)
}

func TestExposureFunction_AvoidsDivideByZero(t *testing.T) {
	exposure := exposureFunction(0, 0.35)
	assert.InDelta(t, 3500.0, exposure, 1)
}
