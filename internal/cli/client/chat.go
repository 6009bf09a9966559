package client

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ChatCmd creates the interactive chat command.
func ChatCmd() *cobra.Command {
	var (
		conversationID string
		k              int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Starts an interactive session. Every line is a question in the same
conversation. Type /sources to repeat the sources of the last answer and
/quit (or end the input) to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if conversationID == "" {
				conv, err := createConversation(ctx, api, "")
				if err != nil {
					return err
				}
				conversationID = conv.ID
			}
			fmt.Fprintln(out, mutedStyle.Render("conversation: "+conversationID))

			var last *AnswerResult
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, promptStyle.Render("> "))
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/sources":
					if last != nil {
						fmt.Fprintln(out, renderSources(last.Sources))
					}
					continue
				}

				result, err := ask(ctx, api, conversationID, line, resolveK(k), out)
				if err != nil {
					var streamErr *StreamError
					if errors.As(err, &streamErr) {
						fmt.Fprintln(out)
						fmt.Fprintln(out, errorStyle.Render(streamErr.Error()))
						continue
					}
					return err
				}
				last = result
				printAnswerFooter(out, result)
			}
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of fragments to retrieve (server default when 0)")

	return cmd
}
