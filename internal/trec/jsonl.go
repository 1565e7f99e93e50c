package trec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// ReadDocuments reads a JSONL corpus file.
func ReadDocuments(path string) ([]Document, error) {
	var docs []Document
	err := readJSONL(path, func(line []byte) error {
		var d Document
		if err := json.Unmarshal(line, &d); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// WriteDocuments writes a JSONL corpus file.
func WriteDocuments(path string, docs []Document) error {
	return writeJSONL(path, len(docs), func(i int) any { return docs[i] })
}

// ReadQueries reads a JSONL queries file.
func ReadQueries(path string) ([]Query, error) {
	var queries []Query
	err := readJSONL(path, func(line []byte) error {
		var q Query
		if err := json.Unmarshal(line, &q); err != nil {
			return err
		}
		queries = append(queries, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// WriteQueries writes a JSONL queries file.
func WriteQueries(path string, queries []Query) error {
	return writeJSONL(path, len(queries), func(i int) any { return queries[i] })
}

func readJSONL(path string, decode func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundError(path)
		}
		return errors.InternalError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Legal case texts run long; raise the scanner limit well past the default.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			return errors.DataError(fmt.Sprintf("%s line %d", path, lineNo), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.InternalError(fmt.Sprintf("reading %s", path), err)
	}
	return nil
}

func writeJSONL(path string, n int, record func(i int) any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("creating %s", path), err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := 0; i < n; i++ {
		if err := enc.Encode(record(i)); err != nil {
			f.Close()
			return errors.InternalError(fmt.Sprintf("encoding record %d", i), err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.InternalError(fmt.Sprintf("flushing %s", path), err)
	}
	return f.Close()
}
