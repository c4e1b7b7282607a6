// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shah-data-scientist/Sports-See-sub000/pkg/ux"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// =============================================================================
// Command Flags
// =============================================================================

var (
	chatServer    string // server base URL
	chatResume    string // conversation ID to continue
	chatK         int    // retrieval hits to request (0 = adaptive)
	chatNoSources bool   // suppress source attributions
	chatTimeout   time.Duration
)

// =============================================================================
// Command Definition
// =============================================================================

// chatCmd starts an interactive question-answering session.
//
// # Description
//
// Line-oriented REPL against a running server. The first answer opens a
// conversation; every following question is sent with its ID so the
// server can resolve follow-ups ("what about his assists?") from history.
// Type "exit" or "quit" (or send EOF) to leave.
//
// # Examples
//
//	sportsee chat
//	sportsee chat --server api.internal:12310 --k 3
//	sportsee chat --resume 4f6b2c1e-...
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat against a running server",
	Args:  cobra.NoArgs,
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "",
		"server base URL (defaults to http://localhost:<configured port>)")
	chatCmd.Flags().StringVar(&chatResume, "resume", "",
		"continue an existing conversation by ID")
	chatCmd.Flags().IntVar(&chatK, "k", 0,
		"retrieval hits to request (0 lets the server choose)")
	chatCmd.Flags().BoolVar(&chatNoSources, "no-sources", false,
		"omit source attributions from answers")
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", 90*time.Second,
		"per-question timeout")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	client := newAPIClient(serverURL(chatServer), chatTimeout)
	opts := chatOptions{
		ConversationID: chatResume,
		K:              chatK,
		ShowSources:    !chatNoSources,
	}
	if err := runChatSession(cmd.Context(), client, os.Stdin, opts); err != nil {
		fail(err)
	}
}

// =============================================================================
// Session Loop
// =============================================================================

// chatOptions carries the per-session settings into the REPL loop.
type chatOptions struct {
	ConversationID string
	K              int
	ShowSources    bool
}

// runChatSession drives the REPL over any reader, which keeps the loop
// testable without a terminal.
func runChatSession(ctx context.Context, client *apiClient, in io.Reader, opts chatOptions) error {
	ux.Title("Sports-See chat")
	if opts.ConversationID != "" {
		ux.Muted(fmt.Sprintf("resuming conversation %s", opts.ConversationID))
	}
	ux.Muted(`Ask about NBA stats and discussion. Type "exit" to quit.`)

	conversationID := opts.ConversationID
	scanner := bufio.NewScanner(in)

	for {
		printPrompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		req := datatypes.ChatRequest{
			Query:          line,
			K:              opts.K,
			ConversationID: conversationID,
		}
		if !opts.ShowSources {
			off := false
			req.IncludeSources = &off
		}

		spin := ux.NewSpinner("thinking")
		spin.Start()
		resp, err := client.Chat(ctx, req)
		spin.Stop()
		if err != nil {
			// One failed question should not end the session.
			ux.Error(err.Error())
			continue
		}

		if conversationID == "" && resp.ConversationID != "" {
			ux.Muted(fmt.Sprintf("conversation %s", resp.ConversationID))
		}
		conversationID = resp.ConversationID

		ux.Answer(resp.Answer)
		if resp.PersistenceWarning != "" {
			ux.Warning(resp.PersistenceWarning)
		}
		if opts.ShowSources && len(resp.Sources) > 0 {
			ux.Muted("sources: " + formatSources(resp.Sources))
		}
		ux.Muted(fmt.Sprintf("[%s | %dms | turn %d]",
			resp.Routing, resp.ProcessingTimeMs, resp.TurnNumber))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if conversationID != "" {
		ux.Muted(fmt.Sprintf("resume later with: sportsee chat --resume %s", conversationID))
	}
	return nil
}

func printPrompt() {
	if !ux.Interactive() {
		return
	}
	fmt.Print(ux.Styles.Highlight.Render("you> "))
}

func formatSources(sources []datatypes.SourceAttribution) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("%s (%.1f)", s.Source, s.Score)
	}
	return strings.Join(parts, ", ")
}
