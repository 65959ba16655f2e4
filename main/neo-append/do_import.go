package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/machbase/neo-append/api"
)

type ImportCmd struct {
	AppendFlags `embed:""`
	File        string   `name:"file" short:"f" default:"-" help:"csv file, - for stdin"`
	Header      bool     `name:"header" help:"the first line names the input columns"`
	Columns     []string `name:"columns" help:"input column names, in csv field order"`
	Delimiter   string   `name:"delimiter" default:"," help:"field delimiter"`
	NullValue   string   `name:"null" default:"" help:"field value read as NULL"`
}

func (cmd *ImportCmd) Run(cli *Cli) error {
	var in io.Reader = os.Stdin
	if cmd.File != "-" {
		f, err := os.Open(cmd.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	r := csv.NewReader(in)
	if len(cmd.Delimiter) > 0 {
		r.Comma = []rune(cmd.Delimiter)[0]
	}
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	opts, err := cmd.options()
	if err != nil {
		return err
	}
	db, err := cli.database()
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()
	conn, err := db.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	appender, err := conn.Appender(ctx, cmd.Table, opts...)
	if err != nil {
		return err
	}

	columns := cmd.Columns
	if cmd.Header {
		header, err := r.Read()
		if err != nil {
			_, _, _ = appender.Close()
			return fmt.Errorf("read header, %w", err)
		}
		columns = append([]string{}, header...)
	}
	if len(columns) > 0 {
		appender = appender.WithInputColumns(columns...)
	}

	started := time.Now()
	lines, invalid := 0, 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lines++
		if err != nil {
			invalid++
			fmt.Fprintf(os.Stderr, "line %d, %s\n", lines, err.Error())
			continue
		}
		values := make([]any, len(rec))
		for i, field := range rec {
			if field == cmd.NullValue {
				values[i] = nil
			} else {
				values[i] = strings.TrimSpace(field)
			}
		}
		if err := appender.Append(values...); err != nil {
			if api.CodeOf(err) == api.ErrorCodeTransportFailure {
				break
			}
			invalid++
			fmt.Fprintf(os.Stderr, "line %d, %s\n", lines, err.Error())
		}
	}
	success, fail, err := appender.Close()
	printSummary(os.Stdout, []summaryRow{{
		Table:   appender.TableName(),
		Lines:   lines,
		Invalid: invalid,
		Success: success,
		Fail:    fail,
		Elapsed: time.Since(started),
	}})
	return err
}
