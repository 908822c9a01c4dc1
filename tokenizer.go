package mlm_dataset

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const LINE_LRU_SZ = 32768

// Reserved vocabulary ids. These occupy ids 0-4 ahead of any loaded
// vocabulary entry.
const (
	PadToken  Token = 0
	UnkToken  Token = 1
	ClsToken  Token = 2
	SepToken  Token = 3
	MaskToken Token = 4
)

var reservedWords = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]"}

// Tokenizer
// Maps whitespace-delimited surface tokens onto a fixed vocabulary.
// Vocabulary entries keep their file order in Words so the table can be
// re-emitted verbatim.
type Tokenizer struct {
	Vocab     TokenMap
	Words     []string
	LowerCase bool
	Cache     *lru.ARCCache
	LruHits   int
	LruMisses int
}

// NewTokenizer
// Loads a vocabulary from a plain-text file of `token frequency` lines.
// Ids 0-4 are reserved for the special markers; loaded entries are
// assigned ids starting at 5, in file order. A duplicate token is a
// construction error. The `lowerCase` flag is carried but not applied;
// case handling belongs to whatever produced the vocabulary.
func NewTokenizer(vocabPath string, lowerCase bool) (*Tokenizer, error) {
	vocabFile, err := os.Open(vocabPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening vocabulary %s", vocabPath)
	}
	defer vocabFile.Close()
	vocabMmap, err := mmap.Map(vocabFile, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mmapping vocabulary %s", vocabPath)
	}
	defer vocabMmap.Unmap()

	cache, err := lru.NewARC(LINE_LRU_SZ)
	if err != nil {
		return nil, err
	}
	tokenizer := &Tokenizer{
		Vocab:     make(TokenMap),
		Words:     make([]string, 0, len(reservedWords)),
		LowerCase: lowerCase,
		Cache:     cache,
	}
	for idx, word := range reservedWords {
		tokenizer.Vocab[word] = Token(idx)
		tokenizer.Words = append(tokenizer.Words, word)
	}

	scanner := bufio.NewScanner(bytes.NewReader(vocabMmap))
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		piece := fields[0]
		if _, exists := tokenizer.Vocab[piece]; exists {
			return nil, errors.Errorf(
				"duplicate vocabulary entry %q at %s:%d", piece,
				vocabPath, lineNo)
		}
		tokenizer.Vocab[piece] = Token(len(tokenizer.Words))
		tokenizer.Words = append(tokenizer.Words, piece)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading vocabulary %s", vocabPath)
	}
	return tokenizer, nil
}

func (tokenizer *Tokenizer) VocabSize() int {
	return len(tokenizer.Words)
}

// Tokenize
// Splits a line into surface tokens on whitespace.
func (tokenizer *Tokenizer) Tokenize(line string) []string {
	return strings.Fields(line)
}

// ConvertTokensToIds
// Maps surface tokens to vocabulary ids, substituting [UNK] for tokens
// not in the table.
func (tokenizer *Tokenizer) ConvertTokensToIds(words []string) Tokens {
	ids := make(Tokens, len(words))
	for idx, word := range words {
		if id, ok := tokenizer.Vocab[word]; ok {
			ids[idx] = id
		} else {
			ids[idx] = UnkToken
		}
	}
	return ids
}

// EncodeLine
// Tokenize plus ConvertTokensToIds with an ARC cache in front; corpora
// repeat lines, so identical lines encode once. Callers must not mutate
// the returned slice.
func (tokenizer *Tokenizer) EncodeLine(line string) Tokens {
	if cached, ok := tokenizer.Cache.Get(line); ok {
		tokenizer.LruHits++
		return cached.(Tokens)
	}
	tokenizer.LruMisses++
	ids := tokenizer.ConvertTokensToIds(tokenizer.Tokenize(line))
	tokenizer.Cache.Add(line, ids)
	return ids
}

// Decode
// Maps ids back to their surface tokens, space-joined. Ids outside the
// vocabulary render as [UNK].
func (tokenizer *Tokenizer) Decode(ids Tokens) string {
	words := make([]string, len(ids))
	for idx, id := range ids {
		if int(id) < len(tokenizer.Words) {
			words[idx] = tokenizer.Words[id]
		} else {
			words[idx] = reservedWords[UnkToken]
		}
	}
	return strings.Join(words, " ")
}

// WriteVocab
// Writes the full in-memory vocabulary, reserved entries included, one
// token per line in id order.
func (tokenizer *Tokenizer) WriteVocab(path string) error {
	outFile, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	writer := bufio.NewWriter(outFile)
	for _, word := range tokenizer.Words {
		writer.WriteString(word)
		writer.WriteByte('\n')
	}
	if err := writer.Flush(); err != nil {
		outFile.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return outFile.Close()
}
