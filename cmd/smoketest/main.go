package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/directorscut/internal/e2etest"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/logging"
	"github.com/myrjola/directorscut/internal/models"
)

// TestConversation starts a conversation, sends one message, and resets it again.
func TestConversation(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	catalogue, err := client.Directors(ctx)
	if err != nil {
		return errors.Wrap(err, "list directors")
	}
	if len(catalogue.Directors) == 0 {
		return errors.New("no directors available")
	}
	director := catalogue.Directors[0].ID

	if _, err = client.Start(ctx, director, models.EmotionJoy, ""); err != nil {
		return errors.Wrap(err, "start session", slog.String("director", string(director)))
	}
	var reply e2etest.Reply
	if reply, err = client.Send(ctx, "안녕하세요, 스모크 테스트입니다."); err != nil {
		return errors.Wrap(err, "send message")
	}
	if reply.Message.Content == "" {
		return errors.New("empty reply", slog.String("stage", string(reply.Stage)))
	}
	if err = client.Reset(ctx); err != nil {
		return errors.Wrap(err, "reset session")
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestConversation(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing conversation", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
