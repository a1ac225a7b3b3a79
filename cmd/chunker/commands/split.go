package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newSplitMarkdownCmd(o *globalOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "split-md [file]",
		Short: "Split Markdown read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			p, _, release, err := o.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return o.write(cmd.OutOrStdout(), p.SplitMarkdown(cmd.Context(), content, title))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "header for content before the first heading")
	return cmd
}

func newSplitTextCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split-text [file]",
		Short: "Split plain text read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			p, _, release, err := o.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return o.write(cmd.OutOrStdout(), p.SplitPlainText(cmd.Context(), content))
		},
	}
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}
