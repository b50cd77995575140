package privacy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedUniform(u float64) NoiserOption {
	return WithUniformSource(func() (float64, error) { return u, nil })
}

func TestLaplace(t *testing.T) {
	t.Run("median draw is zero noise", func(t *testing.T) {
		n := NewNoiser(fixedUniform(0.5))
		noise, err := n.Laplace(1.0, 0.5)
		require.NoError(t, err)
		assert.Zero(t, noise)
	})

	t.Run("scale follows sensitivity over epsilon", func(t *testing.T) {
		n := NewNoiser(fixedUniform(0.25))
		atEps1, err := n.Laplace(1.0, 1.0)
		require.NoError(t, err)
		atEps2, err := n.Laplace(1.0, 2.0)
		require.NoError(t, err)
		// Same uniform draw, double epsilon, half the noise.
		assert.InDelta(t, atEps1/2, atEps2, 1e-12)

		atSens2, err := n.Laplace(2.0, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, atEps1*2, atSens2, 1e-12)
	})

	t.Run("low draws go negative and high draws positive", func(t *testing.T) {
		low := NewNoiser(fixedUniform(0.1))
		noise, err := low.Laplace(1.0, 1.0)
		require.NoError(t, err)
		assert.Negative(t, noise)

		high := NewNoiser(fixedUniform(0.9))
		noise, err = high.Laplace(1.0, 1.0)
		require.NoError(t, err)
		assert.Positive(t, noise)
	})

	t.Run("zero draw does not blow up", func(t *testing.T) {
		n := NewNoiser(fixedUniform(0))
		noise, err := n.Laplace(1.0, 1.0)
		require.NoError(t, err)
		assert.False(t, math.IsInf(noise, 0))
		assert.False(t, math.IsNaN(noise))
	})

	t.Run("crypto source draws vary", func(t *testing.T) {
		n := NewNoiser()
		a, err := n.Laplace(1.0, 1.0)
		require.NoError(t, err)
		b, err := n.Laplace(1.0, 1.0)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestGaussian(t *testing.T) {
	t.Run("sigma scales with sensitivity over epsilon", func(t *testing.T) {
		n := NewNoiser(fixedUniform(0.3))
		atEps1, err := n.Gaussian(1.0, 1.0, 1e-5)
		require.NoError(t, err)
		atEps2, err := n.Gaussian(1.0, 2.0, 1e-5)
		require.NoError(t, err)
		assert.InDelta(t, atEps1/2, atEps2, 1e-12)
	})

	t.Run("zero draw does not blow up", func(t *testing.T) {
		n := NewNoiser(fixedUniform(0))
		noise, err := n.Gaussian(1.0, 1.0, 1e-5)
		require.NoError(t, err)
		assert.False(t, math.IsInf(noise, 0))
		assert.False(t, math.IsNaN(noise))
	})
}
