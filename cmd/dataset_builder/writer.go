package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/wbrown/mlm_dataset"
	"github.com/yargevad/filepathx"
)

// WriterConfig
// Per-worker configuration for an ExampleWriter.
type WriterConfig struct {
	JobID              int
	VocabFile          string
	OutputDir          string
	MaxSeqLength       int
	NumJobs            int
	BlanksSeparateDocs bool
	DoLowerCase        bool
	NumOutFiles        int
	Seed               int64
}

// ExampleWriter
// Owns one worker's tokenizer, example builder, and shard handles. Shard
// `i` of the global NumOutFiles belongs to this job when
// i % NumJobs == JobID; completed examples round-robin across the owned
// shards, so each worker writes a disjoint shard subset in a
// deterministic order.
type ExampleWriter struct {
	NWritten  int
	BytesRead int64

	jobID              int
	blanksSeparateDocs bool
	rng                *rand.Rand
	builder            *mlm_dataset.ExampleBuilder
	writers            []*os.File
	log                zerolog.Logger
}

func shardName(outputDir string, shardIdx int, numOutFiles int) string {
	return filepath.Join(outputDir,
		fmt.Sprintf("pretrain_data-%d-of-%d.bin", shardIdx, numOutFiles))
}

func NewExampleWriter(config WriterConfig,
	log zerolog.Logger) (*ExampleWriter, error) {
	tokenizer, err := mlm_dataset.NewTokenizer(config.VocabFile,
		config.DoLowerCase)
	if err != nil {
		return nil, err
	}
	log.Info().Int("vocab_size", tokenizer.VocabSize()).
		Msg("vocabulary loaded")

	// Job 0 dumps the assembled vocabulary, reserved markers included,
	// next to the input vocabulary for downstream consumers.
	if config.JobID == 0 {
		vocabOut := filepath.Join(filepath.Dir(config.VocabFile),
			"vocab.txt")
		if err := tokenizer.WriteVocab(vocabOut); err != nil {
			return nil, err
		}
		log.Info().Str("path", vocabOut).Msg("vocabulary written")
	}

	rng := rand.New(rand.NewSource(config.Seed))
	writer := &ExampleWriter{
		jobID:              config.JobID,
		blanksSeparateDocs: config.BlanksSeparateDocs,
		rng:                rng,
		builder: mlm_dataset.NewExampleBuilder(tokenizer,
			config.MaxSeqLength, rng),
		log: log,
	}
	for shardIdx := 0; shardIdx < config.NumOutFiles; shardIdx++ {
		if shardIdx%config.NumJobs != config.JobID {
			continue
		}
		outPath := shardName(config.OutputDir, shardIdx,
			config.NumOutFiles)
		outFile, openErr := os.OpenFile(outPath,
			os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0755)
		if openErr != nil {
			writer.Finish()
			return nil, errors.Wrapf(openErr, "creating shard %s",
				outPath)
		}
		writer.writers = append(writer.writers, outFile)
	}
	return writer, nil
}

func (writer *ExampleWriter) write(example *mlm_dataset.Example) error {
	shard := writer.writers[writer.NWritten%len(writer.writers)]
	if _, err := shard.Write(*example.ToBin()); err != nil {
		return errors.Wrapf(err, "writing shard %s", shard.Name())
	}
	writer.NWritten++
	return nil
}

// WriteExamples
// Feeds one input file through the example builder, writing out each
// completed example, and flushes any partial example at end of file. When
// blank lines do not separate documents they are dropped from the stream
// entirely.
func (writer *ExampleWriter) WriteExamples(inputPath string) error {
	inFile, err := os.Open(inputPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", inputPath)
	}
	defer inFile.Close()
	scanner := bufio.NewScanner(inFile)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := NormalizeLine(scanner.Text())
		writer.BytesRead += int64(len(scanner.Bytes()) + 1)
		if line == "" && !writer.blanksSeparateDocs {
			continue
		}
		if example := writer.builder.AddLine(line); example != nil {
			if err := writer.write(example); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "reading %s", inputPath)
	}
	// End of file ends the current document regardless of a trailing
	// blank line.
	if example := writer.builder.AddLine(""); example != nil {
		return writer.write(example)
	}
	return nil
}

// Finish
// Closes every owned shard handle. Safe to call more than once; only the
// first call does the closing.
func (writer *ExampleWriter) Finish() error {
	var firstErr error
	for _, shard := range writer.writers {
		if err := shard.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	writer.writers = nil
	return firstErr
}

// runJob
// One worker: builds an ExampleWriter, claims its slice of the split
// corpus files, and streams them through the tokenize/accumulate/write
// pipeline. Reports per-file progress with an ETA. The worker's file
// order is shuffled with its own seeded rng, as corpora are often sorted
// by source.
func runJob(jobID int, args *builderArgs, parent zerolog.Logger,
	written *int) (err error) {
	log := parent.With().Int("job", jobID).Logger()
	writer, err := NewExampleWriter(WriterConfig{
		JobID:              jobID,
		VocabFile:          args.vocabFile,
		OutputDir:          args.outputDir,
		MaxSeqLength:       args.maxSeqLength,
		NumJobs:            args.numProcesses,
		BlanksSeparateDocs: args.blanksSeparateDocs,
		DoLowerCase:        args.doLowerCase,
		NumOutFiles:        args.numOutFiles,
		Seed:               args.seed + int64(jobID),
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if finishErr := writer.Finish(); err == nil {
			err = finishErr
		}
	}()

	fnames, err := filepathx.Glob(args.corpusDir + "/*.txt")
	if err != nil {
		return err
	}
	sort.Strings(fnames)
	owned := make([]string, 0, len(fnames))
	for idx, fname := range fnames {
		if idx%args.numProcesses == jobID {
			owned = append(owned, fname)
		}
	}
	writer.rng.Shuffle(len(owned), func(i, j int) {
		owned[i], owned[j] = owned[j], owned[i]
	})

	begin := time.Now()
	for fileNo, fname := range owned {
		if fileNo > 0 {
			elapsed := time.Since(begin)
			eta := time.Duration(float64(elapsed) *
				float64(len(owned)-fileNo) / float64(fileNo))
			log.Info().
				Int("files_done", fileNo).
				Int("files_total", len(owned)).
				Str("percent", fmt.Sprintf("%.1f%%",
					100.0*float64(fileNo)/float64(len(owned)))).
				Dur("elapsed", elapsed.Round(time.Second)).
				Dur("eta", eta.Round(time.Second)).
				Int("examples_written", writer.NWritten).
				Str("bytes_read",
					humanize.Bytes(uint64(writer.BytesRead))).
				Msg("tokenizing")
		}
		if err := writer.WriteExamples(fname); err != nil {
			return err
		}
	}
	log.Info().Int("examples_written", writer.NWritten).Msg("done")
	*written = writer.NWritten
	return nil
}
