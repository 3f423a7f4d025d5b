package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/lms-exam-client/internal/model"
	"github.com/stemsi/lms-exam-client/internal/proctor"
	"github.com/stemsi/lms-exam-client/internal/session"
)

func printIntro(def *model.TestDefinition) {
	fmt.Printf("\nTest: %d questions", len(def.Questions))
	if def.Settings.TimeLimitMinutes != nil {
		fmt.Printf(", %d minute limit", *def.Settings.TimeLimitMinutes)
	}
	if def.Settings.PassingThreshold > 0 {
		fmt.Printf(", pass at %.0f%%", def.Settings.PassingThreshold*100)
	}
	if def.Settings.MaxAttempts != nil {
		fmt.Printf(", %d attempts allowed", *def.Settings.MaxAttempts)
	}
	fmt.Println()
	printHelp()
	renderQuestions(def, nil)
}

func printHelp() {
	fmt.Println(`Commands:
  list                 show all questions and current answers
  a <n> <option>       toggle an option on question n
  t <n> <answer...>    set the text answer for question n
  time                 show the clock
  save                 save a draft now
  submit               finish and grade the test
  quit                 leave (draft answers are kept)`)
}

// renderQuestions prints every question with its current answer. A nil
// answer set renders the blank test.
func renderQuestions(def *model.TestDefinition, answers model.AnswerSet) {
	for i, q := range def.Questions {
		fmt.Printf("\n%d. %s (%.0f pt)\n", i+1, q.Question, q.Points)
		switch q.Type {
		case model.QuestionTypeMultipleChoice:
			for _, opt := range q.Options {
				mark := " "
				if answers != nil && answers[q.ID].Has(opt.ID) {
					mark = "x"
				}
				fmt.Printf("   [%s] %s. %s\n", mark, opt.ID, opt.Text)
			}
		case model.QuestionTypeText:
			text := ""
			if answers != nil {
				text = answers[q.ID].Text
			}
			if text == "" {
				fmt.Println("   (no answer yet)")
			} else {
				fmt.Printf("   answer: %s\n", text)
			}
		}
	}
	fmt.Println()
}

// formatClock renders seconds as m:ss, the way the browser client did.
func formatClock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// repl runs the command loop until the test is submitted, the user quits,
// or the surrounding context is cancelled. Returns the process exit code.
func repl(ctx context.Context, in *bufio.Reader, ctrl *session.Controller, reporter *proctor.Reporter) int {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if err != nil {
				return
			}
			select {
			case lines <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	def := ctrl.Definition()
	for {
		select {
		case <-ctx.Done():
			saveDraft(ctrl)
			fmt.Println("\nLeaving — your answers were saved as a draft.")
			return 0

		case ev := <-ctrl.Events():
			switch ev.Kind {
			case session.EventTick:
				// Announce the clock sparingly: each minute boundary and
				// the final ten seconds.
				if ev.RemainingSeconds%60 == 0 || ev.RemainingSeconds <= 10 {
					fmt.Printf("Time left: %s\n", formatClock(ev.RemainingSeconds))
				}
			case session.EventTimeExpired:
				fmt.Println("Time is up — submitting your answers...")
			case session.EventSubmitFailed:
				fmt.Printf("Submission failed (%v). Your answers are intact; type 'submit' to retry.\n", ev.Err)
			case session.EventAutosaveFailed:
				fmt.Println("Warning: draft autosave failed.")
			case session.EventSubmitted:
				printResult(ev.Result)
				return 0
			}

		case line, ok := <-lines:
			if !ok {
				saveDraft(ctrl)
				fmt.Println("Input closed — draft answers are kept.")
				return 0
			}
			if done := dispatch(ctx, line, def, ctrl); done {
				return 0
			}
		}
	}
}

// dispatch handles one command line. Returns true when the loop should end.
func dispatch(ctx context.Context, line string, def *model.TestDefinition, ctrl *session.Controller) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "list", "l":
		renderQuestions(def, ctrl.Snapshot().Answers)

	case "a":
		if len(fields) != 3 {
			fmt.Println("Usage: a <question number> <option id>")
			return false
		}
		q := questionAt(def, fields[1])
		if q == nil {
			return false
		}
		if q.Type != model.QuestionTypeMultipleChoice {
			fmt.Println("That question takes a text answer; use 't'.")
			return false
		}
		if !q.HasOption(fields[2]) {
			fmt.Printf("Question has no option %q.\n", fields[2])
			return false
		}
		ctrl.RecordAnswer(q.ID, fields[2], true)
		fmt.Printf("Selected options: %s\n", strings.Join(ctrl.Snapshot().Answers[q.ID].Selected, ", "))

	case "t":
		if len(fields) < 2 {
			fmt.Println("Usage: t <question number> <answer>")
			return false
		}
		q := questionAt(def, fields[1])
		if q == nil {
			return false
		}
		if q.Type != model.QuestionTypeText {
			fmt.Println("That question takes options; use 'a'.")
			return false
		}
		ctrl.RecordAnswer(q.ID, strings.Join(fields[2:], " "), false)
		fmt.Println("Answer recorded.")

	case "time":
		snap := ctrl.Snapshot()
		if snap.RemainingSeconds != nil {
			fmt.Printf("Time left: %s\n", formatClock(*snap.RemainingSeconds))
		}
		fmt.Printf("Elapsed: %s", formatClock(snap.ElapsedSeconds))
		if snap.TabSwitches > 0 {
			fmt.Printf("  (left the exam %d time(s))", snap.TabSwitches)
		}
		fmt.Println()

	case "save":
		if err := ctrl.Autosave(ctx); err != nil {
			fmt.Printf("Draft save failed: %v\n", err)
		} else {
			fmt.Println("Draft saved.")
		}

	case "submit":
		// Outcome arrives on the event stream; a re-entrant call while a
		// submission is in flight is a silent no-op.
		_ = ctrl.Submit(ctx)

	case "quit", "q", "exit":
		saveDraft(ctrl)
		fmt.Println("Leaving — your answers were saved as a draft.")
		return true

	case "help", "h":
		printHelp()

	default:
		fmt.Printf("Unknown command %q (try 'help').\n", fields[0])
	}
	return false
}

// saveDraft flushes the answers one last time on the way out. The
// surrounding context may already be cancelled, so it uses its own.
func saveDraft(ctrl *session.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = ctrl.Autosave(ctx)
}

func questionAt(def *model.TestDefinition, raw string) *model.Question {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(def.Questions) {
		fmt.Printf("No question %q.\n", raw)
		return nil
	}
	return &def.Questions[n-1]
}

func printResult(result *model.TestResult) {
	fmt.Println("\n─── Result ───")
	fmt.Printf("Score:  %.1f / %.1f (%.0f%%)\n", result.Score, result.MaxScore, result.Percentage)
	if result.Passed {
		fmt.Println("Status: PASSED")
	} else {
		fmt.Println("Status: NOT PASSED")
	}
	if result.TimeSpentSeconds != nil {
		fmt.Printf("Time:   %s\n", formatClock(*result.TimeSpentSeconds))
	}
	if sa := result.SuspiciousActivity; sa != nil && sa.TabSwitches > 0 {
		fmt.Printf("Note:   %d tab switch(es) were recorded.\n", sa.TabSwitches)
	}
}
