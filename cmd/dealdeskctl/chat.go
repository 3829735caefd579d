package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/ashureev/dealdesk/internal/identity"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		url     string
		user    string
		session string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant over the overlay websocket",
		RunE: func(c *cobra.Command, _ []string) error {
			if user == "" {
				id, err := newAnonID()
				if err != nil {
					return err
				}
				user = id
				_, _ = fmt.Fprintf(c.ErrOrStderr(), "using new identity %s\n", user)
			}
			return runChat(c.Context(), url, user, session)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws/overlay", "overlay websocket url")
	cmd.Flags().StringVar(&user, "user", "", "anonymous user id to reuse (anon_...)")
	cmd.Flags().StringVar(&session, "session", "cli", "tab session id")
	return cmd
}

func newAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func runChat(ctx context.Context, url, user, session string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: identity.AnonCookieName, Value: user}).String())
	header.Set(identity.SessionHeaderName, session)

	conn, resp, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	m := newChatModel(ctx, conn)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
