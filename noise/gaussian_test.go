package noise

import (
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var _ mpc.Noise = (*Gaussian)(nil)

func TestNewGaussian(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		mean []float64
		cov  *mat.SymDense
		ok   bool
	}{
		{mean: []float64{2, 3}, cov: mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1}), ok: true},
		{mean: []float64{2}, cov: mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1}), ok: false},
		{mean: []float64{0, 0}, cov: mat.NewSymDense(2, []float64{1, 2, 2, 1}), ok: false},
	} {
		g, err := NewGaussian(test.mean, test.cov, 1)
		if !test.ok {
			assert.Nil(g)
			assert.Error(err)
			continue
		}
		assert.NotNil(g)
		assert.NoError(err)
	}
}

func TestMeanCov(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov, 1)
	assert.NoError(err)

	assert.True(mat.Equal(cov, g.Cov()))
	assert.EqualValues(mean, g.Mean())

	// returned values are copies
	g.Mean()[0] = 10
	assert.EqualValues(mean, g.Mean())
}

func TestSample(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g1, err := NewGaussian(mean, cov, 42)
	assert.NoError(err)
	g2, err := NewGaussian(mean, cov, 42)
	assert.NoError(err)
	g3, err := NewGaussian(mean, cov, 43)
	assert.NoError(err)

	s1 := g1.Sample()
	assert.Equal(len(mean), s1.Len())

	// same seed, same samples
	assert.True(mat.Equal(s1, g2.Sample()))
	assert.False(mat.Equal(s1, g3.Sample()))
}

func TestReset(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov, 7)
	assert.NotNil(g)
	assert.NoError(err)

	sample1 := g.Sample()
	sample2 := g.Sample()
	assert.False(mat.Equal(sample1, sample2))

	err = g.Reset()
	assert.NoError(err)

	assert.True(mat.Equal(sample1, g.Sample()))
}

func TestString(t *testing.T) {
	assert := assert.New(t)

	str := `Gaussian{
Mean=[2 3]
Cov=⎡  1  0.1⎤
    ⎣0.1    1⎦
}`
	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov, 1)
	assert.NotNil(g)
	assert.NoError(err)
	assert.Equal(str, g.String())
}
