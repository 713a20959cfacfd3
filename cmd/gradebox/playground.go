package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/gradebox/internal/exercise"
	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/sandbox"
)

var playgroundCmd = &cobra.Command{
	Use:     "playground",
	Aliases: []string{"repl"},
	Short:   "Interactive JavaScript playground",
	Long: `Write JavaScript line by line and run it in the sandbox. An empty line
runs the buffer. Select an exercise with /exercise to grade the buffer
instead of just running it.

Examples:
  gradebox playground
  gradebox playground --exercise buscar-maximo`,
	RunE: runPlayground,
}

func init() {
	playgroundCmd.Flags().StringVarP(&exerciseFlag, "exercise", "e", "", "Exercise to grade against")
	rootCmd.AddCommand(playgroundCmd)
}

type playground struct {
	sb       sandbox.Sandbox
	grader   *grader.Grader
	catalog  *exercise.Catalog
	exercise *exercise.Exercise
	buf      []string
	debug    bool
}

func runPlayground(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	sb := cfg.NewSandbox()
	g, err := newGrader(cfg, sb, nil)
	if err != nil {
		return err
	}

	p := &playground{sb: sb, grader: g, catalog: catalog}
	if exerciseFlag != "" {
		if err := p.selectExercise(exerciseFlag); err != nil {
			return err
		}
	}

	fmt.Printf("Gradebox - JavaScript Playground\n")
	fmt.Printf("Sandbox: %s | Exercises: %d\n", cfg.Sandbox.Backend, catalog.Len())
	if p.exercise != nil {
		fmt.Printf("Exercise: %s (%s)\n", p.exercise.ID, p.exercise.FunctionName)
	}
	fmt.Printf("Empty line runs the buffer. Type /help for commands, /quit to exit\n\n")

	// Set up readline for input with history
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mjs>\033[0m ",
		HistoryFile:     filepath.Join(os.TempDir(), "gradebox_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the active run, not the whole app.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		if len(p.buf) > 0 {
			rl.SetPrompt("\033[36m..>\033[0m ")
		} else {
			rl.SetPrompt("\033[36mjs>\033[0m ")
		}

		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		trimmed := strings.TrimSpace(input)
		if isCommand(trimmed) {
			if quit := p.handleCommand(trimmed); quit {
				return nil
			}
			continue
		}
		if trimmed != "" {
			p.buf = append(p.buf, input)
			continue
		}
		if len(p.buf) == 0 {
			continue
		}

		reqCtx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel
		p.execute(reqCtx)
		cancel()
		reqCancel = nil
		p.buf = nil
		fmt.Println()
	}
}

// isCommand reports whether line is a playground command rather than code.
func isCommand(line string) bool {
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return false
	}
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit", "/q", "/clear", "/help", "/show", "/debug", "/exercise":
		return true
	}
	return false
}

func (p *playground) execute(ctx context.Context) {
	code := strings.Join(p.buf, "\n")

	if p.exercise == nil {
		res, err := p.sb.Exec(ctx, sandbox.ExecOpts{Code: code})
		if err != nil {
			fmt.Printf("\033[31merror: %s\033[0m\n", err)
			return
		}
		color := "32"
		if res.Type != sandbox.OutcomeSuccess {
			color = "31"
		}
		fmt.Printf("\033[%sm%s\033[0m\n", color, res.Output)
		return
	}

	if p.exercise.InjectCode {
		code = grader.StudentMarker + "\n" + code
	}
	var debug grader.DebugFunc
	if p.debug {
		debug = func(line string) { fmt.Printf("  \033[90m│ %s\033[0m\n", line) }
	}
	report, err := p.grader.Grade(ctx, p.exercise.Content(), code, debug)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("(interrupted)")
			return
		}
		fmt.Printf("\033[31merror: %s\033[0m\n", err)
		return
	}
	printReport(report, grader.DefaultPassThreshold)
}

func (p *playground) selectExercise(id string) error {
	ex, err := p.catalog.Get(id)
	if err != nil {
		return err
	}
	p.exercise = ex
	return nil
}

// handleCommand runs a slash command and reports whether to exit.
func (p *playground) handleCommand(input string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true
	case "/clear":
		p.buf = nil
		fmt.Println("Buffer cleared.")
	case "/show":
		if len(p.buf) == 0 {
			fmt.Println("(empty)")
		}
		for i, line := range p.buf {
			fmt.Printf("\033[90m%3d\033[0m %s\n", i+1, line)
		}
	case "/debug":
		p.debug = !p.debug
		fmt.Printf("Debug output: %t\n", p.debug)
	case "/exercise":
		if len(fields) < 2 {
			p.exercise = nil
			fmt.Println("Exercise cleared; the buffer will be run, not graded.")
			break
		}
		if err := p.selectExercise(fields[1]); err != nil {
			fmt.Printf("\033[31m%s\033[0m\n", err)
			break
		}
		fmt.Printf("Grading against %s. Define %s and press enter on an empty line.\n",
			p.exercise.ID, p.exercise.FunctionName)
		if p.exercise.StarterCode != "" {
			fmt.Printf("\033[90m%s\033[0m", p.exercise.StarterCode)
		}
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help           - Show this help")
		fmt.Println("  /show           - Print the current buffer")
		fmt.Println("  /clear          - Discard the current buffer")
		fmt.Println("  /exercise [id]  - Grade against an exercise (no id: just run)")
		fmt.Println("  /debug          - Toggle grading progress output")
		fmt.Println("  /quit           - Exit")
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", input)
	}
	fmt.Println()
	return false
}
