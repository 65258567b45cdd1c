// Package chat runs a conversation with a director in the terminal.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/myrjola/directorscut/internal/ai"
	"github.com/myrjola/directorscut/internal/budget"
	"github.com/myrjola/directorscut/internal/config"
	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/logging"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/persistence"
	"github.com/myrjola/directorscut/internal/repositories"
	"github.com/myrjola/directorscut/internal/session"
	"github.com/myrjola/directorscut/internal/sqlite"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "conversation",
	Title: "Conversation",
}

const defaultNamespace = "cli"

// NewCommand creates the chat command. lookupEnv has the same signature as [os.LookupEnv].
func NewCommand(lookupEnv func(string) (string, bool)) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chat",
		GroupID: Group.ID,
		Short:   "Talk to a director",
		Long: `Starts an interactive conversation with a director. Type a message and press enter.
Type the number of a suggested reply to send it. /extend asks for more time, /reset starts over, /quit exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, lookupEnv)
		},
	}
	cmd.Flags().String("director", string(models.PersonaHaru), "director persona: haru, vera, oscar or mira")
	cmd.Flags().String("emotion", string(models.EmotionJoy), "emotion of the day: joy, anger, sadness or pleasure")
	cmd.Flags().String("vignette", "", "one sentence about the day, a placeholder is used when empty")
	cmd.Flags().String("db", "", "SQLite database for saving the conversation, kept in memory when empty")
	cmd.Flags().String("namespace", defaultNamespace, "namespace of the saved conversation")
	cmd.Flags().Bool("verbose", false, "log debug output to stderr")
	return cmd
}

// syncWriter serialises the writes of the input loop and the event printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, args...)
}

func run(cmd *cobra.Command, lookupEnv func(string) (string, bool)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	flags := cmd.Flags()
	var (
		directorFlag, _  = flags.GetString("director")
		emotionFlag, _   = flags.GetString("emotion")
		vignette, _      = flags.GetString("vignette")
		dbURL, _         = flags.GetString("db")
		namespace, _     = flags.GetString("namespace")
		verbose, _       = flags.GetBool("verbose")
		level            = slog.LevelWarn
		out              = &syncWriter{mu: sync.Mutex{}, w: cmd.OutOrStdout()}
		store            persistence.Store
		archiver         session.Archiver
		director         models.Persona
		emotion          models.Emotion
		cfg              *config.Config
		err              error
	)
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	})))

	if cfg, err = config.Load(lookupEnv); err != nil {
		return errors.Wrap(err, "load config")
	}
	if director, err = models.ParsePersona(directorFlag); err != nil {
		return errors.Wrap(err, "parse director flag")
	}
	if emotion, err = models.ParseEmotion(emotionFlag); err != nil {
		return errors.Wrap(err, "parse emotion flag")
	}

	if dbURL == "" {
		store = persistence.NewMemoryStore()
	} else {
		var db *sqlite.Database
		if db, err = sqlite.NewDatabase(ctx, dbURL, logger); err != nil {
			return errors.Wrap(err, "open database", slog.String("url", dbURL))
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.LogAttrs(ctx, slog.LevelError, "close database", errors.SlogError(closeErr))
			}
		}()
		store = repositories.NewKVRepository(db, logger)
		archiver = repositories.NewScenarioRepository(db, logger)
	}

	var catalogue *conversation.Catalogue
	if catalogue, err = conversation.DefaultCatalogue(); err != nil {
		return errors.Wrap(err, "load offline catalogue")
	}
	orchestratorCfg := conversation.DefaultOrchestratorConfig()
	orchestratorCfg.AttemptTimeout = cfg.AttemptTimeout
	generator := ai.NewGenerator(ai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, logger)
	orchestrator := conversation.NewOrchestrator(generator, catalogue, orchestratorCfg, logger)

	gateway := persistence.NewGateway(store, persistence.GatewayConfig{
		Namespace: namespace,
		Debounce:  cfg.PersistDebounce,
		Expiry:    cfg.SessionExpiry,
		Now:       nil,
	}, logger)
	budgetCfg := budget.DefaultConfig()
	budgetCfg.Countdown = cfg.Countdown
	budgetCfg.Extension = cfg.Extension
	budgetCfg.MilestoneTurns = cfg.MilestoneTurns
	s := session.New(orchestrator, gateway, archiver, session.Config{
		Namespace:    namespace,
		Budget:       budgetCfg,
		EventBuffer:  0,
		Now:          nil,
		RunCountdown: true,
	}, logger)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, s.Events())
	}()
	defer func() {
		s.Close()
		<-printed
	}()

	d, _ := director.Director()
	out.printf("%s: %s\n", d.Name, d.Tagline)
	if err = start(ctx, s, out, director, emotion, vignette); err != nil {
		return err
	}
	return loop(ctx, s, cmd.InOrStdin(), out, director, emotion, vignette)
}

func start(
	ctx context.Context,
	s *session.Session,
	out *syncWriter,
	director models.Persona,
	emotion models.Emotion,
	vignette string,
) error {
	recovered, err := s.Start(ctx, director, emotion, vignette)
	if err != nil {
		return errors.Wrap(err, "start conversation")
	}
	snap, err := s.Snapshot()
	if err != nil {
		return errors.Wrap(err, "read conversation")
	}
	if recovered {
		out.printf("(이전 대화를 이어갑니다: %d개의 메시지)\n", len(snap.Conversation.History))
	}
	out.printf("오늘의 장면: %s\n", snap.Conversation.Vignette)
	return nil
}

// loop reads user input line by line until the input ends or /quit is typed.
func loop(
	ctx context.Context,
	s *session.Session,
	in io.Reader,
	out *syncWriter,
	director models.Persona,
	emotion models.Emotion,
	vignette string,
) error {
	var choices []models.Choice
	scanner := bufio.NewScanner(in)
	out.printf("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit":
			return nil
		case "/extend":
			extended, remaining, err := s.Extend(ctx)
			if err != nil {
				return errors.Wrap(err, "extend conversation")
			}
			if extended {
				out.printf("(시간이 연장되었습니다. 남은 시간 %s)\n", remaining)
			} else {
				out.printf("(더 이상 연장할 수 없습니다)\n")
			}
		case "/reset":
			if err := s.Reset(ctx); err != nil {
				return errors.Wrap(err, "reset conversation")
			}
			choices = nil
			if err := start(ctx, s, out, director, emotion, vignette); err != nil {
				return err
			}
		default:
			text := pickChoice(line, choices)
			outcome, err := s.Send(ctx, text)
			if err != nil {
				return errors.Wrap(err, "send message")
			}
			choices = outcome.Message.Choices
			printReply(out, outcome)
		}
		out.printf("> ")
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	return nil
}

// pickChoice returns the text of the numbered choice the user typed, or line itself.
func pickChoice(line string, choices []models.Choice) string {
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(choices) {
		return line
	}
	return choices[n-1].Text
}

func printReply(out *syncWriter, outcome conversation.Outcome) {
	out.printf("%s\n", outcome.Message.Content)
	for i, c := range outcome.Message.Choices {
		out.printf("  %d. %s %s\n", i+1, c.Icon, c.Text)
	}
	conv := outcome.Conversation
	if conv.Stage == models.StageFinal && conv.FinalScenario != "" {
		out.printf("\n=== 최종 시나리오 ===\n%s\n\n", conv.FinalScenario)
	} else if outcome.StageChanged() && conv.Stage == models.StageDraft && conv.DraftScenario != "" {
		out.printf("\n--- 초안 ---\n%s\n\n", conv.DraftScenario)
	}
}

func printEvents(out *syncWriter, events <-chan models.Event) {
	for e := range events {
		switch e.Kind {
		case models.EventStageChanged:
			out.printf("(단계: %s)\n", e.Stage)
		case models.EventOfflineModeEntered:
			out.printf("(연결이 불안정해 오프라인 모드로 전환합니다)\n")
		case models.EventTimeUp:
			out.printf("(시간이 다 되었습니다. /extend 로 연장할 수 있어요)\n")
		case models.EventEngagementMilestone:
			out.printf("(벌써 이만큼 이야기를 나눴네요!)\n")
		case models.EventSessionRecovered, models.EventAssistantMessage:
		}
	}
}
