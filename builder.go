package mlm_dataset

import (
	"math/rand"
	"strings"
)

// Smallest target length drawn for deliberately short examples.
const minTargetLength = 5

// Sentinel first-segment target for single-segment examples; effectively
// unbounded so every sentence lands in the first segment.
const singleSegmentTarget = 100000

// ExampleBuilder
// Accumulates a stream of tokenized lines into fixed-length two-segment
// pretraining examples. One builder serves one worker; it is not safe for
// concurrent use. The random source drives three decisions per emitted
// example, in a fixed order: single-segment mode, segment tie-break coin
// flips, and the next cycle's target length. Seeding the source makes the
// output stream reproducible.
type ExampleBuilder struct {
	tokenizer    *Tokenizer
	rng          *rand.Rand
	sentences    []Tokens
	length       int
	maxLength    int
	targetLength int
}

func NewExampleBuilder(tokenizer *Tokenizer, maxLength int,
	rng *rand.Rand) *ExampleBuilder {
	return &ExampleBuilder{
		tokenizer:    tokenizer,
		rng:          rng,
		sentences:    make([]Tokens, 0, 64),
		maxLength:    maxLength,
		targetLength: maxLength,
	}
}

// AddLine
// Feeds one line of text into the current example. An empty line marks a
// document boundary: it flushes pending sentences into an example even if
// the target length has not been reached, or is a no-op when nothing is
// pending. A non-empty line is tokenized and accumulated, completing an
// example once the running length reaches the target. Returns nil when
// more input is needed.
func (builder *ExampleBuilder) AddLine(line string) *Example {
	line = strings.TrimSpace(strings.ReplaceAll(line, "\n", " "))
	if line == "" {
		if builder.length == 0 {
			return nil
		}
		return builder.createExample()
	}
	ids := builder.tokenizer.EncodeLine(line)
	builder.sentences = append(builder.sentences, ids)
	builder.length += len(ids)
	if builder.length >= builder.targetLength {
		return builder.createExample()
	}
	return nil
}

// createExample
// Packs the pending sentences into two segments, resets the accumulator,
// and redraws the target length for the next cycle.
func (builder *ExampleBuilder) createExample() *Example {
	// Small chance of a single-segment example, as in classification
	// tasks.
	var firstTarget int
	if builder.rng.Float64() < 0.1 {
		firstTarget = singleSegmentTarget
	} else {
		// Reserve three slots for the [CLS] and two [SEP] markers not
		// yet present in the text.
		firstTarget = (builder.targetLength - 3) / 2
	}

	// Greedy in-order distribution. A sentence stays in the first
	// segment when the segment is empty, when it still fits under the
	// target, or on a coin flip while the second segment has not been
	// started and the first is under target.
	var first, second Tokens
	for _, sentence := range builder.sentences {
		switch {
		case len(first) == 0:
			first = append(first, sentence...)
		case len(first)+len(sentence) < firstTarget:
			first = append(first, sentence...)
		case len(second) == 0 && len(first) < firstTarget &&
			builder.rng.Float64() < 0.5:
			first = append(first, sentence...)
		default:
			second = append(second, sentence...)
		}
	}

	// Trim to maxLength, keeping prefixes; the first segment leaves room
	// for [CLS]/[SEP], the second for its trailing [SEP] as well.
	if len(first) > builder.maxLength-2 {
		first = first[:builder.maxLength-2]
	}
	secondMax := builder.maxLength - len(first) - 3
	if secondMax < 0 {
		secondMax = 0
	}
	if len(second) > secondMax {
		second = second[:secondMax]
	}

	builder.sentences = builder.sentences[:0]
	builder.length = 0
	// Small chance of a short target next cycle, for robustness to
	// variable-length inputs.
	if builder.rng.Float64() < 0.05 {
		builder.targetLength = builder.rng.Intn(
			builder.maxLength-minTargetLength+1) + minTargetLength
	} else {
		builder.targetLength = builder.maxLength
	}

	return builder.makeExample(first, second)
}

// makeExample
// Assembles `[CLS] first [SEP]` plus, when present, `second [SEP]`, and
// right-pads all three sequences out to maxLength.
func (builder *ExampleBuilder) makeExample(first Tokens,
	second Tokens) *Example {
	inputIds := make(Tokens, 0, builder.maxLength)
	inputIds = append(inputIds, ClsToken)
	inputIds = append(inputIds, first...)
	inputIds = append(inputIds, SepToken)
	segmentIds := make(Tokens, len(inputIds), builder.maxLength)
	if len(second) > 0 {
		inputIds = append(inputIds, second...)
		inputIds = append(inputIds, SepToken)
		for idx := 0; idx < len(second)+1; idx++ {
			segmentIds = append(segmentIds, 1)
		}
	}
	inputMask := make(Tokens, len(inputIds), builder.maxLength)
	for idx := range inputMask {
		inputMask[idx] = 1
	}
	for len(inputIds) < builder.maxLength {
		inputIds = append(inputIds, PadToken)
	}
	for len(inputMask) < builder.maxLength {
		inputMask = append(inputMask, 0)
	}
	for len(segmentIds) < builder.maxLength {
		segmentIds = append(segmentIds, 0)
	}
	return &Example{
		InputIds:   inputIds,
		InputMask:  inputMask,
		SegmentIds: segmentIds,
	}
}
