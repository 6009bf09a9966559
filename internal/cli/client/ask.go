package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// AnswerResult is everything an answer stream produced.
type AnswerResult struct {
	ConversationID string     `json:"conversation_id"`
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Sources        []Source   `json:"sources"`
	Message        *Message   `json:"message,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		conversationID string
		k              int
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the corpus",
		Long: `Asks a question and streams a cited answer. Without --conversation a new
conversation is started; its ID is printed so follow-up questions can use it.

Examples:
  lexis ask "What is the late payment penalty?"
  lexis ask --conversation 3f2a... "And for international clients?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if conversationID == "" {
				conv, err := createConversation(cmd.Context(), api, "")
				if err != nil {
					return err
				}
				conversationID = conv.ID
			}

			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			var tokens io.Writer = out
			if outputJSON {
				tokens = io.Discard
			}

			result, err := ask(cmd.Context(), api, conversationID, question, resolveK(k), tokens)
			if err != nil {
				return err
			}

			if outputJSON {
				output, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(out, string(output))
				return nil
			}
			printAnswerFooter(out, result)
			fmt.Fprintln(out, mutedStyle.Render("conversation: "+result.ConversationID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of fragments to retrieve (server default when 0)")

	return cmd
}

// ask streams one answer, writing tokens to w as they arrive.
func ask(ctx context.Context, api *APIClient, conversationID, question string, k int, w io.Writer) (*AnswerResult, error) {
	result := &AnswerResult{ConversationID: conversationID}
	var answer strings.Builder

	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	err := api.Stream(ctx, path, AskRequest{Query: question, K: k}, func(ev StreamEvent) error {
		switch ev.Event {
		case "token":
			var t tokenEvent
			if err := json.Unmarshal(ev.Data, &t); err != nil {
				return fmt.Errorf("malformed token event: %w", err)
			}
			answer.WriteString(t.Token)
			_, err := io.WriteString(w, t.Token)
			return err
		case "citation":
			var c Citation
			if err := json.Unmarshal(ev.Data, &c); err != nil {
				return fmt.Errorf("malformed citation event: %w", err)
			}
			result.Citations = append(result.Citations, c)
		case "done":
			var d doneEvent
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				return fmt.Errorf("malformed done event: %w", err)
			}
			result.ConversationID = d.ConversationID
			result.Message = d.Message
			result.Sources = d.Sources
		case "error":
			var e errorEvent
			if err := json.Unmarshal(ev.Data, &e); err != nil {
				return fmt.Errorf("malformed error event: %w", err)
			}
			return &StreamError{Message: e.Error, Code: e.Code, Partial: answer.String()}
		}
		return nil
	})
	result.Answer = answer.String()
	if err != nil {
		return result, err
	}
	if result.Message == nil {
		return result, errors.New("answer stream ended before completion")
	}
	return result, nil
}

// StreamError is an error reported by the server after the answer started.
type StreamError struct {
	Message string
	Code    string
	Partial string
}

func (e *StreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("answer interrupted (%s): %s", e.Code, e.Message)
	}
	return "answer interrupted: " + e.Message
}

func printAnswerFooter(out io.Writer, result *AnswerResult) {
	fmt.Fprintln(out)
	if len(result.Citations) > 0 {
		fmt.Fprintln(out)
		for _, c := range result.Citations {
			fmt.Fprintln(out, renderCitation(c))
		}
	}
	if len(result.Sources) > 0 && result.Message != nil && result.Message.Status == "complete" {
		fmt.Fprintln(out, renderSources(result.Sources))
	}
}
