package classifier

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSafetensors(header string, payload []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(payload)
	return buf.Bytes()
}

func TestDecodeSafetensors_F64WithMetadata(t *testing.T) {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:], math.Float64bits(1.5))
	binary.LittleEndian.PutUint64(payload[8:], math.Float64bits(-2.25))
	header := `{"__metadata__":{"format":"pt"},"fc.bias":{"dtype":"F64","shape":[2],"data_offsets":[0,16]}}`

	tensors, err := DecodeSafetensors(bytes.NewReader(rawSafetensors(header, payload)))
	require.NoError(t, err)
	require.Contains(t, tensors, "fc.bias")
	assert.Equal(t, []int{2}, tensors["fc.bias"].Shape)
	assert.Equal(t, []float64{1.5, -2.25}, tensors["fc.bias"].Data)
	assert.NotContains(t, tensors, "__metadata__")
}

func TestDecodeSafetensors_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated length", []byte{1, 2}},
		{"zero header", rawSafetensors("", nil)},
		{"bad json", rawSafetensors("{nope", nil)},
		{"unsupported dtype", rawSafetensors(`{"a":{"dtype":"BF16","shape":[1],"data_offsets":[0,2]}}`, []byte{0, 0})},
		{"offsets disagree with shape", rawSafetensors(`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,4]}}`, []byte{0, 0, 0, 0})},
		{"payload too short", rawSafetensors(`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`, []byte{0, 0, 0, 0})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSafetensors(bytes.NewReader(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestEncodeSafetensors_RoundTrip(t *testing.T) {
	in := map[string]Tensor{
		"a": {Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}},
		"b": {Shape: []int{3}, Data: []float64{0.5, -0.25, 8}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeSafetensors(&buf, in))

	out, err := DecodeSafetensors(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
