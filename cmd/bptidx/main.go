// Command bptidx is the CLI surface for the B+Tree secondary index:
// LOAD a table from a CSV file (optionally building its index) and run
// SELECT queries against it, in the style of the teacher's cmd/tinysql.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/miniql/bptindex/internal/catalog"
	"github.com/miniql/bptindex/internal/config"
	"github.com/miniql/bptindex/internal/miniql"
	"github.com/miniql/bptindex/internal/opctx"
	"github.com/miniql/bptindex/internal/planner"
	"github.com/miniql/bptindex/internal/runner"
)

func main() {
	if err := runCLI(os.Args[1:]); err != nil {
		exitIfErr(err)
	}
}

func exitIfErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runCLI(args []string) error {
	fs := flag.NewFlagSet("bptidx", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: bptidx [OPTIONS] [STATEMENT]\n")
		fs.PrintDefaults()
	}

	var (
		configPath = fs.String("config", "", "Path to bptidx.yaml")
		dataDir    = fs.String("data", "", "Data directory (overrides config)")
		cmd        = fs.String("cmd", "", "Run a single LOAD/SELECT statement and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	cat := catalog.Open(cfg.DataDir, cfg.PageSize, cfg.CacheCap)
	defer cat.Close()

	if *cmd != "" {
		return runStatement(cat, *cmd)
	}

	remaining := fs.Args()
	if len(remaining) > 0 {
		return runStatement(cat, strings.Join(remaining, " "))
	}

	return runRepl(cat, os.Stdin, os.Stdout)
}

func runRepl(cat *catalog.Catalog, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runStatementTo(cat, line, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func runStatement(cat *catalog.Catalog, stmt string) error {
	return runStatementTo(cat, stmt, os.Stdout)
}

func runStatementTo(cat *catalog.Catalog, stmt string, out io.Writer) error {
	op := opctx.New()
	ast, err := miniql.Parse(stmt)
	if err != nil {
		return err
	}
	switch s := ast.(type) {
	case *miniql.LoadStmt:
		return runLoad(cat, op, s, out)
	case *miniql.SelectStmt:
		return runSelect(cat, s, out)
	default:
		return fmt.Errorf("bptidx: unrecognized statement AST %T", ast)
	}
}

func runLoad(cat *catalog.Catalog, op *opctx.Op, stmt *miniql.LoadStmt, out io.Writer) error {
	start := time.Now()
	table, err := cat.Load(stmt.Table, stmt.WithIndex)
	if err != nil {
		return err
	}

	f, err := os.Open(stmt.Path)
	if err != nil {
		return fmt.Errorf("bptidx: opening %s: %w", stmt.Path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	var rowCount int64
	var byteCount int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("bptidx: reading %s: %w", stmt.Path, err)
		}
		key, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 32)
		if err != nil {
			return fmt.Errorf("bptidx: %s: bad key %q: %w", stmt.Path, record[0], err)
		}
		value := encodeValue(record[1])

		rid, err := table.Heap.Append(int32(key), value)
		if err != nil {
			return fmt.Errorf("bptidx: appending row: %w", err)
		}
		if table.Index != nil {
			if err := table.Index.Insert(int32(key), rid); err != nil {
				return fmt.Errorf("bptidx: indexing key %d: %w", key, err)
			}
		}
		rowCount++
		byteCount += int64(len(value))
	}

	op.Logger.Printf("loaded table %q from %s in %s", stmt.Table, stmt.Path, time.Since(start))
	fmt.Fprintf(out, "loaded %s rows (%s) into %q in %s\n",
		humanize.Comma(rowCount), humanize.Bytes(uint64(byteCount)), stmt.Table, time.Since(start))
	return nil
}

func runSelect(cat *catalog.Catalog, stmt *miniql.SelectStmt, out io.Writer) error {
	start := time.Now()
	table, ok := cat.Get(stmt.Table)
	if !ok {
		return fmt.Errorf("bptidx: table %q is not loaded", stmt.Table)
	}

	plan := planner.BuildPlan(stmt.Predicates)
	var idx runner.Index
	if table.Index != nil {
		idx = table.Index
	}
	rows, err := runner.Run(stmt.Proj, stmt.Predicates, plan, table.Heap, idx)
	if err != nil {
		return err
	}

	for _, r := range rows {
		switch stmt.Proj {
		case runner.ProjKey:
			fmt.Fprintf(out, "%d\n", r.Key)
		case runner.ProjValue:
			fmt.Fprintf(out, "%s\n", decodeValue(r.Value))
		case runner.ProjBoth:
			fmt.Fprintf(out, "%d\t%s\n", r.Key, decodeValue(r.Value))
		case runner.ProjCount:
			fmt.Fprintf(out, "%d\n", r.Count)
		}
	}
	fmt.Fprintf(out, "(%s)\n", humanize.RelTime(start, time.Now(), "elapsed", ""))
	return nil
}

// encodeValue stores the value column as a little-endian int32 when it
// parses as one (so value predicates can compare numerically, per
// miniql's minimal grammar), else as raw UTF-8 bytes.
func encodeValue(s string) []byte {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32); err == nil {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(n)))
		return b
	}
	return []byte(s)
}

func decodeValue(b []byte) string {
	if len(b) == 4 {
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
	}
	return string(b)
}
