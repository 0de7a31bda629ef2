package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromJSONMovingAverage(t *testing.T) {
	ind, err := NewFromJSON("MovingAverage", []byte(`{"period": 7}`))
	require.NoError(t, err)
	assert.Equal(t, "MovingAverage", ind.StructName())
}

func TestNewFromJSONBollingerBands(t *testing.T) {
	ind, err := NewFromJSON("BollingerBands", []byte(`{"period": 20, "deviation": 2.5}`))
	require.NoError(t, err)
	assert.Equal(t, "BollingerBands", ind.StructName())
}

func TestNewFromJSONMissingField(t *testing.T) {
	_, err := NewFromJSON("MovingAverage", []byte(`{}`))
	assert.Error(t, err)
}

func TestNewFromJSONUnknownStruct(t *testing.T) {
	_, err := NewFromJSON("NotARealIndicator", []byte(`{}`))
	assert.Error(t, err)
}
