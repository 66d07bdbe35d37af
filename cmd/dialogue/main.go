package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/client/conversation"
	"github.com/zhouzirui/other-side/backend/internal/logging"
)

var (
	// Global flags
	verbose    bool
	topicsFile string

	// chat flags
	serverURL     string
	transportName string
	topicFlag     string
	stanceFlag    string

	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dialogue",
	Short: "Practice talking with someone who sees it differently",
	Long: `dialogue is a terminal client for the Other Side backend.

Pick a contested topic, meet an AI-generated person who holds a different
view, talk it through, and finish with three reflection questions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		l, err := logging.New(level, "console")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the curated topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, err := conversation.LoadTopics(topicsFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTopics(topics))
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts an interactive conversation.

Commands while chatting:
  /end    end the conversation and show reflection questions
  /reset  go back to topic selection
  /quit   leave`,
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&topicsFile, "topics-file", "", "YAML file overriding the curated topics")

	chatCmd.Flags().StringVar(&serverURL, "server", envOr("OTHER_SIDE_SERVER", "http://localhost:8080"), "Backend base URL (or set OTHER_SIDE_SERVER)")
	chatCmd.Flags().StringVar(&transportName, "transport", "http", "Transport to the backend: http or ws")
	chatCmd.Flags().StringVar(&topicFlag, "topic", "", "Skip topic selection and use this topic")
	chatCmd.Flags().StringVar(&stanceFlag, "stance", "", "Your own view on the topic (optional)")

	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	topics, err := conversation.LoadTopics(topicsFile)
	if err != nil {
		return err
	}

	transport, err := newTransport(transportName, serverURL)
	if err != nil {
		return err
	}
	defer transport.Close()

	s := newSession(
		conversation.New(transport, conversation.WithLogger(logger)),
		cmd.InOrStdin(),
		cmd.OutOrStdout(),
		topics,
	)
	s.presetTopic = topicFlag
	s.presetStance = stanceFlag
	return s.run(cmd.Context())
}

func newTransport(name, base string) (conversation.Transport, error) {
	base = strings.TrimRight(base, "/")
	switch strings.ToLower(name) {
	case "http", "":
		return conversation.NewHTTPTransport(base+"/api/dialogue", nil), nil
	case "ws", "websocket":
		return conversation.NewWSTransport(base + "/api/ws"), nil
	}
	return nil, fmt.Errorf("unknown transport %q: want http or ws", name)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
