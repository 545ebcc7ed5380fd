// Package classifier aggregates a sequence of frame embeddings into REAL/FAKE probabilities.
package classifier

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Class indices of the classifier output.
const (
	ClassReal = 0
	ClassFake = 1
)

// direction holds one LSTM direction. Gate rows are ordered input, forget, cell, output.
type direction struct {
	wih  *mat.Dense    // 4H x D
	whh  *mat.Dense    // 4H x H
	bias *mat.VecDense // bias_ih + bias_hh
}

// BiLSTM is a single-layer bidirectional LSTM followed by mean pooling over
// time and a linear layer with two outputs. It is immutable after construction
// and safe for concurrent use.
type BiLSTM struct {
	inputSize int
	hidden    int
	forward   direction
	backward  direction
	fcWeight  *mat.Dense    // 2 x 2H
	fcBias    *mat.VecDense // 2
}

// Load reads PyTorch-named weights from a safetensors file.
func Load(path string) (*BiLSTM, error) {
	tensors, err := ReadSafetensors(path)
	if err != nil {
		return nil, err
	}
	return New(tensors)
}

// New builds a BiLSTM from a state dict keyed lstm.weight_ih_l0, lstm.weight_hh_l0,
// lstm.bias_ih_l0, lstm.bias_hh_l0 (and their _reverse twins), fc.weight and fc.bias.
func New(tensors map[string]Tensor) (*BiLSTM, error) {
	state := make(map[string]Tensor, len(tensors))
	for name, t := range tensors {
		state[strings.TrimPrefix(name, "module.")] = t
	}

	wih, err := lookup(state, "lstm.weight_ih_l0", 2)
	if err != nil {
		return nil, err
	}
	if wih.Shape[0]%4 != 0 || wih.Shape[0] == 0 || wih.Shape[1] == 0 {
		return nil, fmt.Errorf("lstm.weight_ih_l0 has shape %v, want [4*hidden, input]", wih.Shape)
	}
	hidden, inputSize := wih.Shape[0]/4, wih.Shape[1]

	m := &BiLSTM{inputSize: inputSize, hidden: hidden}
	if m.forward, err = loadDirection(state, "", hidden, inputSize); err != nil {
		return nil, err
	}
	if m.backward, err = loadDirection(state, "_reverse", hidden, inputSize); err != nil {
		return nil, err
	}

	fcW, err := expect(state, "fc.weight", 2, 2*hidden)
	if err != nil {
		return nil, err
	}
	fcB, err := expect(state, "fc.bias", 2)
	if err != nil {
		return nil, err
	}
	m.fcWeight = mat.NewDense(2, 2*hidden, fcW.Data)
	m.fcBias = mat.NewVecDense(2, fcB.Data)
	return m, nil
}

func loadDirection(state map[string]Tensor, suffix string, hidden, inputSize int) (direction, error) {
	wih, err := expect(state, "lstm.weight_ih_l0"+suffix, 4*hidden, inputSize)
	if err != nil {
		return direction{}, err
	}
	whh, err := expect(state, "lstm.weight_hh_l0"+suffix, 4*hidden, hidden)
	if err != nil {
		return direction{}, err
	}
	bih, err := expect(state, "lstm.bias_ih_l0"+suffix, 4*hidden)
	if err != nil {
		return direction{}, err
	}
	bhh, err := expect(state, "lstm.bias_hh_l0"+suffix, 4*hidden)
	if err != nil {
		return direction{}, err
	}

	bias := mat.NewVecDense(4*hidden, nil)
	bias.AddVec(mat.NewVecDense(4*hidden, bih.Data), mat.NewVecDense(4*hidden, bhh.Data))
	return direction{
		wih:  mat.NewDense(4*hidden, inputSize, wih.Data),
		whh:  mat.NewDense(4*hidden, hidden, whh.Data),
		bias: bias,
	}, nil
}

func lookup(state map[string]Tensor, name string, rank int) (Tensor, error) {
	t, ok := state[name]
	if !ok {
		return Tensor{}, fmt.Errorf("missing weight %s", name)
	}
	if len(t.Shape) != rank {
		return Tensor{}, fmt.Errorf("%s has shape %v, want rank %d", name, t.Shape, rank)
	}
	count := 1
	for _, d := range t.Shape {
		count *= d
	}
	if count != len(t.Data) {
		return Tensor{}, fmt.Errorf("%s holds %d values for shape %v", name, len(t.Data), t.Shape)
	}
	return t, nil
}

func expect(state map[string]Tensor, name string, shape ...int) (Tensor, error) {
	t, err := lookup(state, name, len(shape))
	if err != nil {
		return Tensor{}, err
	}
	for i := range shape {
		if t.Shape[i] != shape[i] {
			return Tensor{}, fmt.Errorf("%s has shape %v, want %v", name, t.Shape, shape)
		}
	}
	return t, nil
}

// InputSize is the embedding width the model expects.
func (m *BiLSTM) InputSize() int {
	return m.inputSize
}

// Hidden is the hidden size of each direction.
func (m *BiLSTM) Hidden() int {
	return m.hidden
}

// Classify returns softmax probabilities indexed by ClassReal and ClassFake.
func (m *BiLSTM) Classify(seq [][]float32) ([2]float64, error) {
	logits, err := m.Logits(seq)
	if err != nil {
		return [2]float64{}, err
	}
	p := Softmax(logits[:])
	return [2]float64{p[0], p[1]}, nil
}

// Logits runs the network. An empty sequence pools to zeros, giving fc.bias.
func (m *BiLSTM) Logits(seq [][]float32) ([2]float64, error) {
	inputs := make([]*mat.VecDense, len(seq))
	for t, x := range seq {
		if len(x) != m.inputSize {
			return [2]float64{}, fmt.Errorf("embedding %d has width %d, want %d", t, len(x), m.inputSize)
		}
		data := make([]float64, len(x))
		for i, v := range x {
			data[i] = float64(v)
		}
		inputs[t] = mat.NewVecDense(len(data), data)
	}

	pooled := mat.NewVecDense(2*m.hidden, nil)
	if len(inputs) > 0 {
		fwd := m.forward.run(inputs, m.hidden, false)
		bwd := m.backward.run(inputs, m.hidden, true)
		scale := 1 / float64(len(inputs))
		for i := 0; i < m.hidden; i++ {
			pooled.SetVec(i, fwd.AtVec(i)*scale)
			pooled.SetVec(m.hidden+i, bwd.AtVec(i)*scale)
		}
	}

	out := mat.NewVecDense(2, nil)
	out.MulVec(m.fcWeight, pooled)
	out.AddVec(out, m.fcBias)
	return [2]float64{out.AtVec(0), out.AtVec(1)}, nil
}

// run walks the sequence in one direction and returns the sum of hidden states.
func (d direction) run(inputs []*mat.VecDense, hidden int, reverse bool) *mat.VecDense {
	h := mat.NewVecDense(hidden, nil)
	c := mat.NewVecDense(hidden, nil)
	sum := mat.NewVecDense(hidden, nil)
	gates := mat.NewVecDense(4*hidden, nil)
	recurrent := mat.NewVecDense(4*hidden, nil)

	for step := range inputs {
		t := step
		if reverse {
			t = len(inputs) - 1 - step
		}

		gates.MulVec(d.wih, inputs[t])
		recurrent.MulVec(d.whh, h)
		gates.AddVec(gates, recurrent)
		gates.AddVec(gates, d.bias)

		for j := 0; j < hidden; j++ {
			in := sigmoid(gates.AtVec(j))
			forget := sigmoid(gates.AtVec(hidden + j))
			cell := math.Tanh(gates.AtVec(2*hidden + j))
			out := sigmoid(gates.AtVec(3*hidden + j))

			cj := forget*c.AtVec(j) + in*cell
			c.SetVec(j, cj)
			h.SetVec(j, out*math.Tanh(cj))
		}
		sum.AddVec(sum, h)
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Softmax is a numerically stable softmax.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		if v > peak {
			peak = v
		}
	}
	out := make([]float64, len(logits))
	var total float64
	for i, v := range logits {
		out[i] = math.Exp(v - peak)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
