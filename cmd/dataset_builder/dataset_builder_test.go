package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/mlm_dataset"
)

type NormalizeTest struct {
	Name     string
	Input    string
	Expected string
}

type NormalizeTests []NormalizeTest

var normalizeTests = NormalizeTests{
	{"Extra spaces handling",
		"foo  bar",
		"foo bar"},
	{"Tab handling",
		"foo\tbar",
		"foo bar"},
	{"Prefix and trailing spaces handling",
		"  foo bar ",
		"foo bar"},
	{"Whitespace-only line collapses to boundary",
		" \t ",
		""},
	{"Empty line passes through",
		"",
		""},
}

func TestNormalizeLine(t *testing.T) {
	for testIdx := range normalizeTests {
		input := normalizeTests[testIdx].Input
		output := NormalizeLine(input)
		assert.Equal(t, normalizeTests[testIdx].Expected, output,
			normalizeTests[testIdx].Name)
	}
}

func writeTestFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestSplitCorpusRoundRobinByDocument(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	writeTestFile(t, corpusPath, "a b\nc d\n\ne f\n\ng h\n")

	require.NoError(t, SplitCorpus(corpusPath, dir, 2))

	// Documents 0 and 2 belong to worker 0, document 1 to worker 1;
	// boundary blanks stay with the file they were read into.
	data0, err := os.ReadFile(filepath.Join(dir, "corpus-0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a b\nc d\n\ng h\n", string(data0))
	data1, err := os.ReadFile(filepath.Join(dir, "corpus-1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "e f\n\n", string(data1))
}

func TestSplitCorpusPreservesDocumentSet(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	numDocs := 17
	numProcs := 3
	corpus := ""
	for docNo := 0; docNo < numDocs; docNo++ {
		corpus += fmt.Sprintf("doc%d line one\ndoc%d line two\n\n",
			docNo, docNo)
	}
	writeTestFile(t, corpusPath, corpus)
	require.NoError(t, SplitCorpus(corpusPath, dir, numProcs))

	// No document's lines may straddle worker files, and the union of
	// all split files must be exactly the input document set.
	seen := make(map[string]int)
	for procNo := 0; procNo < numProcs; procNo++ {
		data, err := os.ReadFile(filepath.Join(dir,
			fmt.Sprintf("corpus-%d.txt", procNo)))
		require.NoError(t, err)
		for _, doc := range strings.Split(string(data), "\n\n") {
			if doc == "" {
				continue
			}
			docNo := -1
			for lineNo, line := range strings.Split(
				strings.Trim(doc, "\n"), "\n") {
				var parsed int
				var rest string
				_, scanErr := fmt.Sscanf(line, "doc%d line %s",
					&parsed, &rest)
				require.NoError(t, scanErr)
				if lineNo == 0 {
					docNo = parsed
				} else {
					assert.Equal(t, docNo, parsed,
						"document split across files")
				}
			}
			seen[doc]++
		}
	}
	assert.Len(t, seen, numDocs)
}

func testWriterConfig(t *testing.T, dir string) WriterConfig {
	t.Helper()
	vocabPath := filepath.Join(dir, "input_vocab.txt")
	writeTestFile(t, vocabPath,
		"the 6\ncat 5\nsat 4\nit 3\nran 2\nhome 1\n")
	outputDir := filepath.Join(dir, "out")
	require.NoError(t, rmkdir(outputDir))
	return WriterConfig{
		JobID:              0,
		VocabFile:          vocabPath,
		OutputDir:          outputDir,
		MaxSeqLength:       16,
		NumJobs:            1,
		BlanksSeparateDocs: true,
		NumOutFiles:        1,
		Seed:               42,
	}
}

func TestShardOwnershipAndRoundRobin(t *testing.T) {
	dir := t.TempDir()
	config := testWriterConfig(t, dir)
	config.JobID = 1
	config.NumJobs = 2
	config.NumOutFiles = 4
	config.MaxSeqLength = 8

	writer, err := NewExampleWriter(config, zerolog.Nop())
	require.NoError(t, err)
	example := &mlm_dataset.Example{
		InputIds:   mlm_dataset.Tokens{2, 5, 3, 0, 0, 0, 0, 0},
		InputMask:  mlm_dataset.Tokens{1, 1, 1, 0, 0, 0, 0, 0},
		SegmentIds: mlm_dataset.Tokens{0, 0, 0, 0, 0, 0, 0, 0},
	}
	for writeNo := 0; writeNo < 5; writeNo++ {
		require.NoError(t, writer.write(example))
	}
	require.NoError(t, writer.Finish())

	recordSize := int64(mlm_dataset.ExampleRecordSize(8))
	// Job 1 of 2 owns global shards 1 and 3; five writes round-robin
	// as 3 and 2 records.
	stat1, err := os.Stat(shardName(config.OutputDir, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 3*recordSize, stat1.Size())
	stat3, err := os.Stat(shardName(config.OutputDir, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, 2*recordSize, stat3.Size())
	_, err = os.Stat(shardName(config.OutputDir, 0, 4))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(shardName(config.OutputDir, 2, 4))
	assert.True(t, os.IsNotExist(err))
}

func readExamples(t *testing.T, path string,
	seqLen int) []*mlm_dataset.Example {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	recordSize := mlm_dataset.ExampleRecordSize(seqLen)
	require.Zero(t, len(data)%recordSize)
	examples := make([]*mlm_dataset.Example, 0, len(data)/recordSize)
	for offset := 0; offset < len(data); offset += recordSize {
		record := data[offset : offset+recordSize]
		example, err := mlm_dataset.ExampleFromBin(&record, seqLen)
		require.NoError(t, err)
		examples = append(examples, example)
	}
	return examples
}

func contentText(t *testing.T, tokenizer *mlm_dataset.Tokenizer,
	example *mlm_dataset.Example) string {
	t.Helper()
	maskSum := 0
	for _, bit := range example.InputMask {
		if bit == 1 {
			maskSum++
		}
	}
	return tokenizer.Decode(example.InputIds[:maskSum])
}

func TestEndToEndTwoDocuments(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	writeTestFile(t, corpusPath, "the cat sat\n\nit ran home\n")
	config := testWriterConfig(t, dir)

	args := &builderArgs{
		corpusPath:         corpusPath,
		corpusDir:          filepath.Join(dir, "scratch"),
		vocabFile:          config.VocabFile,
		outputDir:          config.OutputDir,
		maxSeqLength:       16,
		numProcesses:       1,
		blanksSeparateDocs: true,
		numOutFiles:        1,
		seed:               42,
	}
	require.NoError(t, rmkdir(args.corpusDir))
	require.NoError(t, SplitCorpus(args.corpusPath, args.corpusDir, 1))
	written := 0
	require.NoError(t, runJob(0, args, zerolog.Nop(), &written))

	// One example flushed at the blank line, one at end of input.
	assert.Equal(t, 2, written)
	tokenizer, err := mlm_dataset.NewTokenizer(args.vocabFile, false)
	require.NoError(t, err)
	examples := readExamples(t, shardName(args.outputDir, 0, 1), 16)
	require.Len(t, examples, 2)
	for _, example := range examples {
		assert.Equal(t, mlm_dataset.ClsToken, example.InputIds[0])
	}
	assert.Equal(t, "[CLS] the cat sat [SEP]",
		contentText(t, tokenizer, examples[0]))
	assert.Equal(t, "[CLS] it ran home [SEP]",
		contentText(t, tokenizer, examples[1]))

	// Job 0 dumps the merged vocabulary next to the input vocabulary.
	dumped, err := os.ReadFile(filepath.Join(dir, "vocab.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(dumped), "\n"), "\n")
	assert.Len(t, lines, 11)
	assert.Equal(t, "[PAD]", lines[0])
}

func TestBlanksDroppedWhenNotSeparatingDocs(t *testing.T) {
	dir := t.TempDir()
	config := testWriterConfig(t, dir)
	config.BlanksSeparateDocs = false

	inputPath := filepath.Join(dir, "corpus-0.txt")
	writeTestFile(t, inputPath, "the cat\n\nsat\n")
	writer, err := NewExampleWriter(config, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, writer.WriteExamples(inputPath))
	require.NoError(t, writer.Finish())

	// With boundaries disabled the blank line vanishes, so both
	// documents pack into the single end-of-file flush.
	tokenizer, err := mlm_dataset.NewTokenizer(config.VocabFile, false)
	require.NoError(t, err)
	examples := readExamples(t, shardName(config.OutputDir, 0, 1), 16)
	require.Len(t, examples, 1)
	assert.Equal(t, "[CLS] the cat sat [SEP]",
		contentText(t, tokenizer, examples[0]))
}

func TestPipelineDeterministicWithFixedSeed(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	words := []string{"the", "cat", "sat", "it", "ran", "home"}
	corpus := ""
	for docNo := 0; docNo < 40; docNo++ {
		for lineNo := 0; lineNo < 1+docNo%4; lineNo++ {
			for wordNo := 0; wordNo < 3+(docNo+lineNo)%5; wordNo++ {
				corpus += words[(docNo+lineNo+wordNo)%len(words)] + " "
			}
			corpus += "\n"
		}
		corpus += "\n"
	}
	writeTestFile(t, corpusPath, corpus)

	run := func(runName string) []byte {
		runDir := filepath.Join(dir, runName)
		config := testWriterConfig(t, t.TempDir())
		args := &builderArgs{
			corpusPath:         corpusPath,
			corpusDir:          filepath.Join(runDir, "scratch"),
			vocabFile:          config.VocabFile,
			outputDir:          filepath.Join(runDir, "out"),
			maxSeqLength:       24,
			numProcesses:       2,
			blanksSeparateDocs: true,
			numOutFiles:        2,
			seed:               7,
		}
		require.NoError(t, rmkdir(args.corpusDir))
		require.NoError(t, rmkdir(args.outputDir))
		require.NoError(t, SplitCorpus(args.corpusPath, args.corpusDir,
			args.numProcesses))
		for jobID := 0; jobID < args.numProcesses; jobID++ {
			written := 0
			require.NoError(t, runJob(jobID, args, zerolog.Nop(),
				&written))
			assert.Greater(t, written, 0)
		}
		combined := make([]byte, 0)
		for shardIdx := 0; shardIdx < args.numOutFiles; shardIdx++ {
			data, err := os.ReadFile(shardName(args.outputDir, shardIdx,
				args.numOutFiles))
			require.NoError(t, err)
			combined = append(combined, data...)
		}
		return combined
	}

	first := run("first")
	second := run("second")
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}
