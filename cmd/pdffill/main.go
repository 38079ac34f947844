// Command pdffill inspects, fills and merges PDF forms from the command line
// using the same pipeline as the forms service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/logging"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
)

type options struct {
	fs       afero.Fs
	format   string
	logLevel string
}

func (o *options) pipeline(w io.Writer) *pdf.Pipeline {
	logger := zap.NewNop()
	if o.logLevel != "" {
		logger = logging.NewWithWriter(o.logLevel, w)
	}
	return pdf.NewPipeline(pdf.Options{}, pdf.WithLogger(logger))
}

func (o *options) output(cmd *cobra.Command, v any, text func(io.Writer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	opts := &options{fs: fs}
	root := &cobra.Command{
		Use:           "pdffill",
		Short:         "Inspect, fill and merge PDF forms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.format, "format", "text", "output format: text or json")
	root.PersistentFlags().StringVar(&opts.logLevel, "loglevel", "", "log pipeline events to stderr at this level")
	root.AddCommand(newFieldsCmd(opts), newFillCmd(opts), newMergeCmd(opts))
	return root
}

func newFieldsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fields FILE",
		Short: "List the form fields of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := afero.ReadFile(opts.fs, args[0])
			if err != nil {
				return err
			}
			fields, err := pdf.Inspect(data)
			if err != nil {
				return fmt.Errorf("reading fields of %s: %w", args[0], err)
			}
			return opts.output(cmd, fields, func(w io.Writer) {
				for _, f := range fields {
					fmt.Fprintf(w, "%s\t%s", f.Name, f.Type)
					if f.Value != "" {
						fmt.Fprintf(w, "\t%q", f.Value)
					}
					if len(f.States) > 0 {
						fmt.Fprintf(w, "\t[%s]", strings.Join(f.States, "|"))
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
}

func newFillCmd(opts *options) *cobra.Command {
	var (
		out        string
		fields     map[string]string
		signatures map[string]string
		stamp      string
		stampColor string
		flatten    bool
	)
	cmd := &cobra.Command{
		Use:   "fill FILE",
		Short: "Fill form fields, draw signatures and optionally flatten and stamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := afero.ReadFile(opts.fs, args[0])
			if err != nil {
				return err
			}
			result, err := opts.pipeline(cmd.ErrOrStderr()).Fill(context.Background(), pdf.FillRequest{
				PDF:        data,
				Fields:     fields,
				Signatures: signatures,
				StampText:  stamp,
				StampColor: stampColor,
				Flatten:    flatten,
			})
			if err != nil {
				return err
			}
			if err := afero.WriteFile(opts.fs, out, result.PDF, 0o644); err != nil {
				return err
			}
			return opts.output(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "wrote %s (%d pages, %d fields set)\n", out, result.PageCount, result.FieldsSet)
				for _, name := range result.Skipped {
					fmt.Fprintf(w, "skipped signature %s\n", name)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().StringToStringVarP(&fields, "field", "f", nil, "field value as name=value, repeatable")
	cmd.Flags().StringToStringVarP(&signatures, "signature", "s", nil, "signature text as field=text, repeatable")
	cmd.Flags().StringVar(&stamp, "stamp", "", "text stamped across every page")
	cmd.Flags().StringVar(&stampColor, "stamp-color", "", "stamp color as #rrggbb")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "make every field read only")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newMergeCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "merge FILE...",
		Short: "Concatenate PDFs in order, skipping unreadable inputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := make([]pdf.Source, 0, len(args))
			for _, name := range args {
				data, err := afero.ReadFile(opts.fs, name)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "cannot read %s: %v\n", name, err)
				}
				sources = append(sources, pdf.Source{Name: name, Data: data})
			}
			report, err := opts.pipeline(cmd.ErrOrStderr()).Merge(context.Background(), sources)
			if err != nil {
				return err
			}
			if len(report.Merged) == 0 {
				return fmt.Errorf("none of the %d inputs could be merged", len(args))
			}
			if err := afero.WriteFile(opts.fs, out, report.PDF, 0o644); err != nil {
				return err
			}
			return opts.output(cmd, report, func(w io.Writer) {
				fmt.Fprintf(w, "wrote %s (%d pages from %d files)\n", out, report.Pages, len(report.Merged))
				for _, name := range report.Skipped {
					fmt.Fprintf(w, "skipped %s\n", name)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
