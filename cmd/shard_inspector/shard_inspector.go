package main

import (
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/wbrown/mlm_dataset"
)

// Decodes the records of one output shard back to surface tokens, for
// eyeballing what a dataset_builder run actually produced.
func main() {
	inputFile := flag.String("input", "",
		"shard file to inspect")
	vocabFile := flag.String("vocab-file", "",
		"vocabulary file the shard was built with")
	maxSeqLength := flag.Int("max-seq-length", 128,
		"number of tokens per example")
	showIds := flag.Bool("ids", false,
		"print raw token ids instead of surface tokens")
	limit := flag.Int("limit", 0,
		"maximum records to print, 0 for all")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()

	if *inputFile == "" {
		flag.Usage()
		log.Fatal().Msg("Must provide -input")
	}
	if *vocabFile == "" {
		flag.Usage()
		log.Fatal().Msg("Must provide -vocab-file")
	}

	tokenizer, err := mlm_dataset.NewTokenizer(*vocabFile, false)
	if err != nil {
		log.Fatal().Err(err).Msg("loading vocabulary")
	}

	inFile, err := os.Open(*inputFile)
	if err != nil {
		log.Fatal().Err(err).Msg("opening shard")
	}
	defer inFile.Close()

	buf := make([]byte, mlm_dataset.ExampleRecordSize(*maxSeqLength))
	recordNo := 0
	for {
		if _, readErr := io.ReadFull(inFile, buf); readErr == io.EOF {
			break
		} else if readErr != nil {
			log.Fatal().Err(readErr).
				Msgf("shard truncated at record %d", recordNo)
		}
		example, decodeErr := mlm_dataset.ExampleFromBin(&buf,
			*maxSeqLength)
		if decodeErr != nil {
			log.Fatal().Err(decodeErr).
				Msgf("decoding record %d", recordNo)
		}
		// Only the masked prefix is real content; the rest is padding.
		content := make(mlm_dataset.Tokens, 0, *maxSeqLength)
		for idx, id := range example.InputIds {
			if example.InputMask[idx] == 0 {
				break
			}
			content = append(content, id)
		}
		event := log.Info().Int("record", recordNo).
			Int("content_len", len(content))
		if *showIds {
			ids := make([]int, len(content))
			for idx, id := range content {
				ids[idx] = int(id)
			}
			event.Ints("input_ids", ids).Msg("record")
		} else {
			event.Str("text", tokenizer.Decode(content)).Msg("record")
		}
		recordNo++
		if *limit > 0 && recordNo >= *limit {
			break
		}
	}
	log.Info().Int("records", recordNo).Msg("shard read")
}
