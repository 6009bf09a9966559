package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
)

// ConversationsCmd creates the conversations command.
func ConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Short:   "List, show and delete conversations",
		Aliases: []string{"conv"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationList(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationList(cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <conversation_id>",
		Short: "Show a conversation with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationShow(cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <conversation_id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete(cmd.Context(), "/conversations/"+url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to delete conversation: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation: %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func createConversation(ctx context.Context, api *APIClient, title string) (*Conversation, error) {
	resp, err := api.Post(ctx, "/conversations", map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(resp.Data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	return &conv, nil
}

func runConversationList(cmd *cobra.Command) error {
	outputJSON, _ := cmd.Flags().GetBool("output")
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(cmd.Context(), "/conversations")
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	var convs []Conversation
	if err := json.Unmarshal(resp.Data, &convs); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(convs, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return nil
	}
	for _, c := range convs {
		fmt.Fprintf(out, "%s  %s  %s\n", mutedStyle.Render(c.ID), titleStyle.Render(c.Title), c.UpdatedAt)
	}
	return nil
}

func runConversationShow(cmd *cobra.Command, id string) error {
	outputJSON, _ := cmd.Flags().GetBool("output")
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(cmd.Context(), "/conversations/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(resp.Data, &conv); err != nil {
		return fmt.Errorf("failed to parse conversation: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(conv, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}
	printConversation(out, &conv)
	return nil
}

func printConversation(out io.Writer, conv *Conversation) {
	fmt.Fprintln(out, titleStyle.Render(conv.Title))
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s, started %s", conv.ID, conv.CreatedAt)))
	for _, m := range conv.Messages {
		fmt.Fprintln(out)
		label := promptStyle.Render("you")
		if m.Role == "assistant" {
			label = citationStyle.Render("lexis")
		}
		if m.Status != "" && m.Status != "complete" {
			label += " " + mutedStyle.Render("("+m.Status+")")
		}
		fmt.Fprintf(out, "%s: %s\n", label, m.Content)
	}
}
