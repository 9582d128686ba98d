package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diarybot/diarybot/internal/assistant"
)

// cliTelegramID marks the local user that identify runs as.
const cliTelegramID = 0

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var imagePath, lang string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "identify [text]",
		Short: "Identify a movie or series from a description or a frame",
		Long: `Run one message through the assistant without Telegram and print the reply.
This is useful for checking search providers and ranking from the shell.

Examples:
  diarybot identify "фильм про акул 1999"
  diarybot identify --image frame.jpg
  diarybot identify "what movie is this" --image frame.png --verbose`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			req := assistant.Request{Language: lang}
			if len(args) > 0 {
				req.Text = strings.TrimSpace(args[0])
			}
			if imagePath != "" {
				img, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				req.Image = img
				req.ImageExt = strings.TrimPrefix(strings.ToLower(filepath.Ext(imagePath)), ".")
			}
			if req.Text == "" && req.Image == nil {
				return fmt.Errorf("provide a description or --image")
			}

			log := newLogger(cfg)
			defer log.Close()

			a, err := newApp(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.users.Upsert(cmd.Context(), cliTelegramID, "cli", lang)
			if err != nil {
				return fmt.Errorf("prepare local user: %w", err)
			}
			req.User = user

			reply := a.assistant.Run(cmd.Context(), req)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Text)
			if verbose {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "kind:      %s\n", reply.Kind)
				fmt.Fprintf(out, "confident: %s\n", yesNo(reply.Confident))
				if reply.Query != "" {
					fmt.Fprintf(out, "query:     %s\n", reply.Query)
				}
				if reply.Source != "" {
					fmt.Fprintf(out, "source:    %s\n", reply.Source)
				}
				for i, c := range reply.Candidates {
					fmt.Fprintf(out, "%2d. %-40s %.3f\n", i+1, c.Title, c.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Path to a screenshot or frame")
	cmd.Flags().StringVar(&lang, "lang", "", "Reply language (ru, uk, en)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show query, source and scored candidates")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
