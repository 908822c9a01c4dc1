package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

type builderArgs struct {
	corpusPath         string
	corpusDir          string
	vocabFile          string
	outputDir          string
	maxSeqLength       int
	numProcesses       int
	blanksSeparateDocs bool
	doLowerCase        bool
	numOutFiles        int
	seed               int64
}

func rmkdir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.MkdirAll(path, 0755)
}

func main() {
	corpusPath := flag.String("corpus-path", "",
		"location of the raw pre-training corpus, one sentence per line")
	corpusDir := flag.String("corpus-dir", "",
		"scratch directory for per-worker corpus splits")
	vocabFile := flag.String("vocab-file", "",
		"location of the vocabulary file, one `token frequency` pair "+
			"per line")
	outputDir := flag.String("output-dir", "",
		"where to write the output shards")
	maxSeqLength := flag.Int("max-seq-length", 128,
		"number of tokens per example")
	numProcesses := flag.Int("num-processes", 1,
		"parallelize across multiple workers")
	blanksSeparateDocs := flag.Bool("blanks-separate-docs", false,
		"whether blank lines indicate document boundaries")
	doLowerCase := flag.Bool("do-lower-case", false,
		"lower case input text")
	numOutFiles := flag.Int("num-out-files", 2,
		"number of output shard files")
	seed := flag.Int64("seed", 0,
		"random seed for reproducible output, 0 seeds from the clock")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()

	if *corpusPath == "" {
		flag.Usage()
		log.Fatal().Msg("Must provide -corpus-path")
	}
	if *corpusDir == "" {
		flag.Usage()
		log.Fatal().Msg("Must provide -corpus-dir")
	}
	if *vocabFile == "" {
		flag.Usage()
		log.Fatal().Msg("Must provide -vocab-file")
	}
	if *outputDir == "" {
		flag.Usage()
		log.Fatal().Msg("Must provide -output-dir")
	}
	// Each worker must own at least one shard.
	if *numProcesses > *numOutFiles {
		log.Fatal().Msgf(
			"num-processes (%d) must not exceed num-out-files (%d)",
			*numProcesses, *numOutFiles)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	args := &builderArgs{
		corpusPath:         *corpusPath,
		corpusDir:          *corpusDir,
		vocabFile:          *vocabFile,
		outputDir:          *outputDir,
		maxSeqLength:       *maxSeqLength,
		numProcesses:       *numProcesses,
		blanksSeparateDocs: *blanksSeparateDocs,
		doLowerCase:        *doLowerCase,
		numOutFiles:        *numOutFiles,
		seed:               *seed,
	}

	if err := rmkdir(args.corpusDir); err != nil {
		log.Fatal().Err(err).Msgf("recreating %s", args.corpusDir)
	}
	if err := rmkdir(args.outputDir); err != nil {
		log.Fatal().Err(err).Msgf("recreating %s", args.outputDir)
	}

	begin := time.Now()
	if err := SplitCorpus(args.corpusPath, args.corpusDir,
		args.numProcesses); err != nil {
		log.Fatal().Err(err).Msg("splitting corpus")
	}

	// Workers run to completion independently; a failed worker does not
	// cancel its siblings, and errors surface only after every worker
	// has finished.
	written := make([]int, args.numProcesses)
	workers := pool.New().WithErrors()
	for jobID := 0; jobID < args.numProcesses; jobID++ {
		jobID := jobID
		workers.Go(func() error {
			return runJob(jobID, args, log, &written[jobID])
		})
	}
	if err := workers.Wait(); err != nil {
		log.Fatal().Err(err).Msg("one or more workers failed")
	}

	if err := os.RemoveAll(args.corpusDir); err != nil {
		log.Fatal().Err(err).Msgf("removing %s", args.corpusDir)
	}

	total := 0
	for _, count := range written {
		total += count
	}
	log.Info().
		Int("examples", total).
		Int("shards", args.numOutFiles).
		Dur("elapsed", time.Since(begin).Round(time.Second)).
		Msg("corpus converted")
}
