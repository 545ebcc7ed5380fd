package classifier

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// maxHeaderSize guards against corrupt length prefixes.
const maxHeaderSize = 100 << 20

// Tensor is a dense row-major float64 tensor.
type Tensor struct {
	Shape []int
	Data  []float64
}

type tensorHeader struct {
	DType   string   `json:"dtype"`
	Shape   []int    `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

// ReadSafetensors parses a safetensors file holding F32 or F64 tensors.
func ReadSafetensors(path string) (map[string]Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer file.Close()
	return DecodeSafetensors(file)
}

// DecodeSafetensors parses safetensors content: an 8-byte little-endian header
// length, a JSON header, then the raw tensor bytes.
func DecodeSafetensors(r io.Reader) (map[string]Tensor, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if headerLen == 0 || headerLen > maxHeaderSize {
		return nil, fmt.Errorf("invalid header length %d", headerLen)
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	headers := make(map[string]tensorHeader, len(raw))
	var end int64
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var h tensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		headers[name] = h
		if h.Offsets[1] > end {
			end = h.Offsets[1]
		}
	}

	payload := make([]byte, end)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read tensor data: %w", err)
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	tensors := make(map[string]Tensor, len(headers))
	for _, name := range names {
		t, err := decodeTensor(headers[name], payload)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = t
	}
	return tensors, nil
}

func decodeTensor(h tensorHeader, payload []byte) (Tensor, error) {
	count := 1
	for _, d := range h.Shape {
		if d < 0 {
			return Tensor{}, fmt.Errorf("negative dimension in %v", h.Shape)
		}
		count *= d
	}

	var width int
	switch h.DType {
	case "F32":
		width = 4
	case "F64":
		width = 8
	default:
		return Tensor{}, fmt.Errorf("unsupported dtype %s", h.DType)
	}

	start, stop := h.Offsets[0], h.Offsets[1]
	if start < 0 || stop < start || stop > int64(len(payload)) || stop-start != int64(count*width) {
		return Tensor{}, fmt.Errorf("offsets %v do not match shape %v", h.Offsets, h.Shape)
	}

	buf := payload[start:stop]
	data := make([]float64, count)
	for i := range data {
		if width == 4 {
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
		} else {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return Tensor{Shape: append([]int(nil), h.Shape...), Data: data}, nil
}

// EncodeSafetensors writes tensors as F32 safetensors content.
func EncodeSafetensors(w io.Writer, tensors map[string]Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]tensorHeader, len(tensors))
	var offset int64
	for _, name := range names {
		size := int64(len(tensors[name].Data) * 4)
		header[name] = tensorHeader{DType: "F32", Shape: tensors[name].Shape, Offsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}
