package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/usecase"
)

type askOptions struct {
	topK      int
	sources   []string
	noSources bool
	json      bool
}

func newAskCommand(open Opener) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the indexed PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			services, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			filter := domain.NewSourceFilter(opts.sources...)
			answer, err := services.Answerer.Answer(ctx, strings.Join(args, " "), opts.topK, filter, usecase.NoHistory)
			if err != nil {
				return fmt.Errorf("answer question: %w", err)
			}

			if opts.json {
				data, err := json.MarshalIndent(answer, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal answer: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printAnswer(cmd.OutOrStdout(), answer, !opts.noSources, filter.Active())
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "number of chunks used as context (0 = configured default)")
	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "restrict retrieval to these PDF file names")
	cmd.Flags().BoolVar(&opts.noSources, "no-sources", false, "do not print citations")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output the answer as JSON")
	return cmd
}

func printAnswer(w io.Writer, answer *domain.Answer, showSources, filtered bool) {
	fmt.Fprintln(w, answer.Text)
	if showSources && len(answer.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, citation := range answer.Citations {
			fmt.Fprintf(w, "  - %s\n", citation)
		}
	}
	if answer.Abstained && filtered {
		fmt.Fprintln(w, "\n"+domain.FilteredOutHint)
	}
}
