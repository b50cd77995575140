package privacy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
)

// Mechanism selects the noise distribution.
type Mechanism string

const (
	MechanismLaplace  Mechanism = "laplace"
	MechanismGaussian Mechanism = "gaussian"
)

// Noiser draws calibrated noise. Uniform randomness is injected so tests can
// pin the draw; production uses crypto/rand.
type Noiser struct {
	uniform func() (float64, error)
}

type NoiserOption func(*Noiser)

// WithUniformSource replaces the randomness source. The function must return
// values in [0,1).
func WithUniformSource(uniform func() (float64, error)) NoiserOption {
	return func(n *Noiser) {
		if uniform != nil {
			n.uniform = uniform
		}
	}
}

func NewNoiser(opts ...NoiserOption) *Noiser {
	n := &Noiser{uniform: cryptoUniform}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func cryptoUniform() (float64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random bytes: %w", err)
	}
	return float64(binary.BigEndian.Uint64(buf[:])) / float64(1<<64), nil
}

// Laplace draws from L(0, b) with b = sensitivity/epsilon via the inverse
// CDF of a uniform draw.
func (n *Noiser) Laplace(sensitivity, epsilon float64) (float64, error) {
	u, err := n.uniform()
	if err != nil {
		return 0, err
	}
	b := sensitivity / epsilon
	if u < 0.5 {
		// Guard the log at u=0.
		if u == 0 {
			u = math.Nextafter(0, 1)
		}
		return b * math.Log(2*u), nil
	}
	return -b * math.Log(2*(1-u)), nil
}

// Gaussian draws from N(0, sigma) with sigma calibrated for (epsilon, delta)
// differential privacy, via the Box-Muller transform.
func (n *Noiser) Gaussian(sensitivity, epsilon, delta float64) (float64, error) {
	u1, err := n.uniform()
	if err != nil {
		return 0, err
	}
	u2, err := n.uniform()
	if err != nil {
		return 0, err
	}
	if u1 == 0 {
		u1 = math.Nextafter(0, 1)
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	sigma := sensitivity * math.Sqrt(2*math.Log(1.25/delta)) / epsilon
	return z * sigma, nil
}
