package commands

import (
	"github.com/spf13/cobra"

	"github.com/feichai0017/document-chunker/internal/agent"
)

func newExtractCmd(o *globalOptions) *cobra.Command {
	var fileType, title string
	cmd := &cobra.Command{
		Use:   "extract <path|url>",
		Short: "Extract a document and print its chunks",
		Long: `Extract a local file, http(s) URL or object store URL and split the
result. The format is taken from --type, then the file extension, then
the content itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, release, err := o.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			opts := cfg.Options()
			opts.Title = title
			chunks, err := p.ExtractAndChunk(cmd.Context(), fileType, agent.FromLocation(args[0]), opts)
			if err != nil {
				return err
			}
			return o.write(cmd.OutOrStdout(), chunks)
		},
	}
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "file type as extension or MIME type")
	cmd.Flags().StringVar(&title, "title", "", "header for content before the first heading")
	return cmd
}
