package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"piigate/internal/core"
	"piigate/internal/redact"
	"piigate/internal/ruleset"
	"piigate/internal/streamparse"
)

type redactOptions struct {
	rulesetPath string
	format      string
	header      bool
	idColumn    string
	dataColumn  string
	streamID    string
}

func newRedactCmd() *cobra.Command {
	opts := &redactOptions{}

	cmd := &cobra.Command{
		Use:   "redact [file]",
		Short: "Redact a CSV or NDJSON file to stdout",
		Long: `Streams a file (or stdin when no file or "-" is given) through the
redaction engine and writes the masked records to stdout. Malformed records
are written with an error marker and counted on stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runRedact(cmd, opts, in)
		},
	}

	cmd.Flags().StringVar(&opts.rulesetPath, "ruleset", "", "Ruleset YAML file (default: built-in ruleset)")
	cmd.Flags().StringVar(&opts.format, "format", "ndjson", "Input format: csv or ndjson")
	cmd.Flags().BoolVar(&opts.header, "header", true, "First CSV row names the columns")
	cmd.Flags().StringVar(&opts.idColumn, "id-column", streamparse.DefaultIDColumn, "CSV column holding the record ID")
	cmd.Flags().StringVar(&opts.dataColumn, "data-column", streamparse.DefaultDataColumn, "CSV column holding the JSON payload")
	cmd.Flags().StringVar(&opts.streamID, "stream-id", "", "Stream identifier (default: random)")

	return cmd
}

func runRedact(cmd *cobra.Command, opts *redactOptions, in io.Reader) error {
	format, err := streamparse.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	snap := ruleset.MustDefault()
	if opts.rulesetPath != "" {
		doc, err := ruleset.LoadFile(opts.rulesetPath)
		if err != nil {
			return err
		}
		if snap, err = ruleset.Compile(doc); err != nil {
			return err
		}
	}
	engine := redact.NewEngine(ruleset.NewHolder(snap))

	parser := streamparse.DefaultOptions(format)
	parser.CSVHeader = opts.header
	parser.IDColumn = opts.idColumn
	parser.DataColumn = opts.dataColumn

	out := bufio.NewWriter(cmd.OutOrStdout())
	var records, failed int
	emit := redact.EmitterFunc(func(o *redact.Output) error {
		if !o.Verbatim {
			records++
			if o.Failed {
				failed++
			}
		}
		_, err := out.Write(o.Data)
		return err
	})

	stream := engine.NewStream(cmd.Context(), redact.StreamOptions{ID: opts.streamID, Parser: parser}, emit)
	streamErr := feedAll(stream, in)
	if err := out.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d records, %d failed\n", records, failed)
	return streamErr
}

func feedAll(stream *redact.Stream, in io.Reader) error {
	buf := make([]byte, 64<<10)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if err := stream.Feed(buf[:n]); err != nil {
				if errors.Is(err, core.ErrStreamTerminated) {
					return stream.Flush()
				}
				stream.Abort()
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return stream.Flush()
		}
		if rerr != nil {
			stream.Abort()
			return fmt.Errorf("read input: %w", rerr)
		}
	}
}
