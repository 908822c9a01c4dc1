package mlm_dataset

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

type Token uint32
type Tokens []Token
type TokenMap map[string]Token

const (
	TokenSize = 4
)

// Example
// One fixed-length pretraining example. All three sequences are exactly
// `max_seq_length` long; InputMask is 1 over real content and 0 over
// padding, SegmentIds is 1 over the second segment (separator included)
// and 0 everywhere else.
type Example struct {
	InputIds   Tokens
	InputMask  Tokens
	SegmentIds Tokens
}

// ExampleRecordSize
// The on-disk size in bytes of one serialized example of `seqLen` tokens.
func ExampleRecordSize(seqLen int) int {
	return 3 * seqLen * TokenSize
}

// ToBin
// Serializes the example as little-endian uint32s: InputIds, then
// InputMask, then SegmentIds. There is no framing; the record size is
// implied by the fixed sequence length.
func (example *Example) ToBin() *[]byte {
	buf := bytes.NewBuffer(make([]byte, 0,
		ExampleRecordSize(len(example.InputIds))))
	for _, seq := range []Tokens{example.InputIds, example.InputMask,
		example.SegmentIds} {
		for idx := range seq {
			binary.Write(buf, binary.LittleEndian, seq[idx])
		}
	}
	byt := buf.Bytes()
	return &byt
}

// ExampleFromBin
// Decodes one serialized example of `seqLen` tokens from `bin`, the exact
// inverse of ToBin.
func ExampleFromBin(bin *[]byte, seqLen int) (*Example, error) {
	if len(*bin) < ExampleRecordSize(seqLen) {
		return nil, errors.Errorf(
			"truncated example record: %d bytes, want %d", len(*bin),
			ExampleRecordSize(seqLen))
	}
	buf := bytes.NewReader(*bin)
	example := &Example{}
	for _, seq := range []*Tokens{&example.InputIds, &example.InputMask,
		&example.SegmentIds} {
		tokens := make(Tokens, 0, seqLen)
		for idx := 0; idx < seqLen; idx++ {
			var token Token
			if err := binary.Read(buf, binary.LittleEndian,
				&token); err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
		*seq = tokens
	}
	return example, nil
}
