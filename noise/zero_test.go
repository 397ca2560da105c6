package noise

import (
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var _ mpc.Noise = (*Zero)(nil)

func TestZero(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	assert.Equal([]float64{0, 0}, e.Mean())
	assert.True(mat.Equal(mat.NewSymDense(2, nil), e.Cov()))
	assert.True(mat.Equal(mat.NewVecDense(2, nil), e.Sample()))
	assert.NoError(e.Reset())

	e, err = NewZero(0)
	assert.Nil(e)
	assert.Error(err)
}
