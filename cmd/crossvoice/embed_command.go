package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"crossvoice/internal/config"
	"crossvoice/internal/embedding"
	"crossvoice/internal/inference"
)

type embedJSON struct {
	Path       string          `json:"path"`
	Stats      embedding.Stats `json:"stats"`
	Similarity *float64        `json:"similarity,omitempty"`
}

func newEmbedCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "embed FILE [FILE]",
		Short: "Compute speaker embeddings",
		Long:  "Prints embedding statistics for one or two utterances, and their cosine similarity when two are given.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}

			models, err := loadModels(signalCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer models.Close()
			embedder := embedding.New(models.Encoder(), logger, embedding.WithDimension(cfg.Embedding.Dimension))

			paths := make([]string, 0, len(args))
			vectors := make([]inference.Embedding, 0, len(args))
			for _, arg := range args {
				path, err := config.ExpandPath(arg)
				if err != nil {
					return err
				}
				vec, err := embedder.Embed(signalCtx, path)
				if err != nil {
					return err
				}
				paths = append(paths, path)
				vectors = append(vectors, vec)
			}

			var similarity *float64
			if len(vectors) == 2 {
				s := embedding.Similarity(vectors[0], vectors[1])
				similarity = &s
			}

			if asJSON {
				payload := make([]embedJSON, 0, len(paths))
				for i, path := range paths {
					payload = append(payload, embedJSON{Path: path, Stats: embedding.Describe(vectors[i]), Similarity: similarity})
				}
				return writeJSON(cmd, payload)
			}

			rows := make([][]string, 0, len(paths))
			for i, path := range paths {
				st := embedding.Describe(vectors[i])
				rows = append(rows, []string{
					path,
					strconv.Itoa(st.Dimension),
					formatFloat(st.Norm),
					formatFloat(st.Min),
					formatFloat(st.Max),
					formatFloat(st.Mean),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Dim", "Norm", "Min", "Max", "Mean"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			if similarity != nil {
				fmt.Fprintf(out, "Cosine similarity: %s\n", formatFloat(*similarity))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
