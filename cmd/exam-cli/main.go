// Command exam-cli is the terminal exam client: log in, pick a module, take
// its timed test, and see the graded result. In-progress answers are
// autosaved so a crash or restart resumes where the attempt left off.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/stemsi/lms-exam-client/internal/api"
	"github.com/stemsi/lms-exam-client/internal/config"
	"github.com/stemsi/lms-exam-client/internal/draft"
	"github.com/stemsi/lms-exam-client/internal/logger"
	"github.com/stemsi/lms-exam-client/internal/proctor"
	"github.com/stemsi/lms-exam-client/internal/session"
)

const proctorHeartbeat = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	moduleFlag := flag.String("module", "", "module id to take the test for (interactive selection when empty)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	client := api.New(cfg.APIBaseURL, cfg.HTTPTimeout, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	} else if err := login(ctx, in, client); err != nil {
		log.Error().Err(err).Msg("Login failed")
		return 1
	}

	user, err := client.Me(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Could not load account")
		return 1
	}
	fmt.Printf("Signed in as %s\n", user.Email)

	moduleID := *moduleFlag
	if moduleID == "" {
		moduleID, err = chooseModule(ctx, in, client)
		if err != nil {
			log.Error().Err(err).Msg("Module selection failed")
			return 1
		}
	}

	store, err := openDraftStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Draft store unavailable")
		return 1
	}
	defer store.Close()

	ctrl := session.New(moduleID, client, store, log,
		session.WithAutosaveInterval(cfg.AutosaveInterval))

	if err := ctrl.Begin(ctx); err != nil {
		switch {
		case api.IsNotFound(err):
			fmt.Printf("Module %q has no test.\n", moduleID)
		case api.IsForbidden(err):
			fmt.Println("You do not have access to this test.")
		default:
			log.Error().Err(err).Msg("Could not start the test")
		}
		return 1
	}

	def := ctrl.Definition()
	if limit := def.Settings.TimeLimitMinutes; limit != nil {
		d := time.Duration(*limit) * time.Minute
		if api.TokenOutlastedBy(client.Token(), d) {
			fmt.Println("Warning: your login token expires before the time limit runs out.")
		}
	}

	// Session timers and the optional proctoring link share one lifetime.
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctrl.Run(sessCtx)

	var reporter *proctor.Reporter
	if cfg.ProctorURL != "" {
		reporter, err = proctor.Dial(sessCtx, cfg.ProctorURL, client.Token(), moduleID, log)
		if err != nil {
			log.Warn().Err(err).Msg("Proctor monitor unreachable, continuing without it")
			reporter = nil
		} else {
			defer reporter.Close()
			go reporter.Run(sessCtx, proctorHeartbeat)
		}
	}

	watchSuspend(sessCtx, ctrl, reporter)

	printIntro(def)
	return repl(ctx, in, ctrl, reporter)
}

// login prompts for credentials. The password prompt suppresses echo when
// stdin is a terminal.
func login(ctx context.Context, in *bufio.Reader, client *api.Client) error {
	fmt.Print("Email: ")
	email, err := in.ReadString('\n')
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)

	var password string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}
		password = string(raw)
	} else {
		line, err := in.ReadString('\n')
		if err != nil {
			return err
		}
		password = strings.TrimSpace(line)
	}

	if _, err := client.Login(ctx, email, password); err != nil {
		if api.IsUnauthorized(err) {
			return errors.New("incorrect email or password")
		}
		return err
	}
	return nil
}

// chooseModule walks the dashboard hierarchy: pick a course, then a module.
func chooseModule(ctx context.Context, in *bufio.Reader, client *api.Client) (string, error) {
	courses, err := client.ListCourses(ctx)
	if err != nil {
		return "", err
	}
	if len(courses) == 0 {
		return "", errors.New("no courses available")
	}

	fmt.Println("\nCourses:")
	for i, course := range courses {
		fmt.Printf("  %d. %s\n", i+1, course.Title)
	}
	ci, err := promptIndex(in, "Course", len(courses))
	if err != nil {
		return "", err
	}

	modules, err := client.ListModules(ctx, courses[ci].ID.String())
	if err != nil {
		return "", err
	}
	if len(modules) == 0 {
		return "", errors.New("course has no modules")
	}

	fmt.Println("\nModules:")
	for i, mod := range modules {
		fmt.Printf("  %d. %s (%d lessons)\n", i+1, mod.Title, mod.TotalLessons)
	}
	mi, err := promptIndex(in, "Module", len(modules))
	if err != nil {
		return "", err
	}
	return modules[mi].ID, nil
}

func promptIndex(in *bufio.Reader, label string, n int) (int, error) {
	for {
		fmt.Printf("%s [1-%d]: ", label, n)
		line, err := in.ReadString('\n')
		if err != nil {
			return 0, err
		}
		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && idx >= 1 && idx <= n {
			return idx - 1, nil
		}
		fmt.Println("Invalid selection.")
	}
}

// openDraftStore picks the configured backend.
func openDraftStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (draft.Store, error) {
	switch cfg.DraftBackend {
	case "redis":
		return draft.NewRedisStore(ctx, cfg.RedisURL, cfg.DraftTTL, log)
	case "file":
		return draft.NewFileStore(cfg.DraftDir)
	default:
		return nil, fmt.Errorf("unknown draft backend %q", cfg.DraftBackend)
	}
}

// watchSuspend counts process suspension as a visibility loss: receiving
// SIGCONT means the user stopped the client and came back, the terminal
// analog of switching browser tabs mid-exam.
func watchSuspend(ctx context.Context, ctrl *session.Controller, reporter *proctor.Reporter) {
	resumed := make(chan os.Signal, 1)
	signal.Notify(resumed, syscall.SIGCONT)
	go func() {
		defer signal.Stop(resumed)
		for {
			select {
			case <-ctx.Done():
				return
			case <-resumed:
				ctrl.RecordTabSwitch()
				reporter.ReportTabSwitch(ctrl.Snapshot().TabSwitches)
				fmt.Println("\nNote: leaving the exam is recorded.")
			}
		}
	}()
}
