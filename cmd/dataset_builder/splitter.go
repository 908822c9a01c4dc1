package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// SplitCorpus
// Partitions the corpus into `numProcesses` worker files, assigning whole
// documents round-robin by document index. A document is a maximal run of
// lines between blank lines; the blank separator is written to the same
// worker file before the document index advances, so no document ever
// straddles two workers and every worker file keeps its boundary blanks.
func SplitCorpus(corpusPath string, tmpDir string,
	numProcesses int) error {
	inFile, err := os.Open(corpusPath)
	if err != nil {
		return errors.Wrapf(err, "opening corpus %s", corpusPath)
	}
	defer inFile.Close()
	stat, err := inFile.Stat()
	if err != nil {
		return err
	}
	bar := progressbar.DefaultBytes(stat.Size(), "splitting corpus")

	outFiles := make([]*os.File, numProcesses)
	writers := make([]*bufio.Writer, numProcesses)
	defer func() {
		for _, outFile := range outFiles {
			if outFile != nil {
				outFile.Close()
			}
		}
	}()
	for idx := range outFiles {
		outPath := filepath.Join(tmpDir,
			fmt.Sprintf("corpus-%d.txt", idx))
		outFile, createErr := os.Create(outPath)
		if createErr != nil {
			return errors.Wrapf(createErr, "creating %s", outPath)
		}
		outFiles[idx] = outFile
		writers[idx] = bufio.NewWriterSize(outFile, 1024*1024)
	}

	scanner := bufio.NewScanner(inFile)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	docIdx := 0
	for scanner.Scan() {
		line := scanner.Text()
		writer := writers[docIdx%numProcesses]
		if line == "" {
			writer.WriteByte('\n')
			docIdx++
		} else {
			writer.WriteString(line)
			writer.WriteByte('\n')
		}
		bar.Add(len(line) + 1)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "reading corpus %s", corpusPath)
	}
	for idx := range writers {
		if err := writers[idx].Flush(); err != nil {
			return err
		}
		if err := outFiles[idx].Close(); err != nil {
			return err
		}
		outFiles[idx] = nil
	}
	bar.Finish()
	return nil
}
