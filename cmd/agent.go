package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/agent"
	"github.com/crystaldolphin/tidewire/internal/shared/cmdutils"
)

var (
	agentMessage string
	agentSession string
	agentTimeout time.Duration
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Interact with the agent",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")
	agentCmd.Flags().StringVarP(&agentSession, "session", "s", "cli:direct", "Session ID")
	agentCmd.Flags().DurationVar(&agentTimeout, "timeout", 10*time.Minute, "Time limit for one message")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runAgent(_ *cobra.Command, _ []string) error {
	container, err := loadContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	loop, err := container.AgentLoop()
	if err != nil {
		return err
	}
	defer loop.EndSession(agentSession)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() { _ = container.Emitter().Run(ctx) }()

	if agentMessage != "" {
		return sendMessage(ctx, loop, agentMessage)
	}
	return runInteractive(ctx, loop)
}

// sendMessage runs one turn and prints the reply.
func sendMessage(ctx context.Context, loop *agent.AgentLoop, content string) error {
	ctx, cancel := context.WithTimeout(ctx, agentTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	reply, err := loop.ProcessDirect(ctx, content, agentSession, func(hint string) {
		fmt.Fprintf(os.Stderr, "  ↳ %s\n", hint)
	})
	if err != nil {
		return err
	}
	cmdutils.PrintResponse(reply)
	return nil
}

// runInteractive reads lines from stdin and sends each to the agent, waiting
// for the reply before prompting again.
func runInteractive(ctx context.Context, loop *agent.AgentLoop) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("You: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}
		if err := sendMessage(ctx, loop, line); err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		}
	}
}
