package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"discussion-companion-be/internal/discussion"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/apperror"

	"github.com/fatih/color"
)

var (
	modelColor  = color.New(color.FgCyan)
	userColor   = color.New(color.FgGreen)
	systemColor = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

const helpText = `Commands:
  /open <topic>   start or resume a discussion on <topic>
  /recent         list recent discussions
  /resume N       reopen recent discussion number N
  /ideas          ask for ten discussion prompts
  /newideas       ask for a fresh set of prompts
  /notes [text]   show notes, or replace them with text
  /back           return to topic selection
  /delete         delete the open discussion
  /quit           exit
Anything else is sent as a message in the open discussion.`

// repl drives one workspace from a line-oriented terminal.
type repl struct {
	machine  *discussion.Machine
	ws       *discussion.Workspace
	identity entity.Identity

	in  *bufio.Scanner
	out io.Writer

	mu        sync.Mutex
	lastNotes string
	lastTopic string
	busy      bool
}

func newREPL(machine *discussion.Machine, identity entity.Identity, in io.Reader, out io.Writer) *repl {
	r := &repl{
		machine:  machine,
		identity: identity,
		in:       bufio.NewScanner(in),
		out:      &syncWriter{w: out},
	}
	r.ws = discussion.NewWorkspace(r.render)
	return r
}

// render only reports what the command loop cannot see: busy changes and
// notes edited on another device.
func (r *repl) render(view discussion.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if view.Busy != r.busy {
		r.busy = view.Busy
		if view.Busy {
			dimColor.Fprintln(r.out, "  ...thinking")
		}
	}
	if view.State != discussion.StateActiveDiscussion {
		r.lastTopic, r.lastNotes = "", ""
		return
	}
	if view.Session.TopicId != r.lastTopic {
		r.lastTopic, r.lastNotes = view.Session.TopicId, view.Session.Notes
		return
	}
	if view.Session.Notes != r.lastNotes {
		r.lastNotes = view.Session.Notes
		systemColor.Fprintln(r.out, "[notes updated]")
	}
}

func (r *repl) run(ctx context.Context) error {
	if err := r.machine.SignIn(ctx, r.ws, r.identity); err != nil {
		r.fail(err)
	}
	defer r.machine.SignOut(r.ws)

	systemColor.Fprintf(r.out, "Signed in as %s. Type /help for commands.\n", r.identity.Email)
	r.printRecent()

	for {
		r.prompt()
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
	}
}

func (r *repl) prompt() {
	if r.ws.State() == discussion.StateActiveDiscussion {
		userColor.Fprintf(r.out, "%s> ", r.ws.Session().TopicLabel)
		return
	}
	userColor.Fprint(r.out, "> ")
}

func (r *repl) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/open":
		r.open(ctx, arg, "")
	case "/recent":
		if err := r.machine.Synchronizer().RefreshRecentIndex(ctx, r.ws); err != nil {
			r.fail(err)
		}
		r.printRecent()
	case "/resume":
		r.resume(ctx, arg)
	case "/ideas", "/newideas":
		r.suggestions(ctx, cmd == "/newideas")
	case "/notes":
		r.notes(ctx, arg)
	case "/back":
		if err := r.machine.Back(ctx, r.ws); err != nil {
			r.fail(err)
		}
		r.printRecent()
	case "/delete":
		r.delete(ctx)
	default:
		errorColor.Fprintf(r.out, "Unknown command %s. Type /help.\n", cmd)
	}
	return false
}

func (r *repl) open(ctx context.Context, label, id string) {
	if label == "" && id == "" {
		errorColor.Fprintln(r.out, "Usage: /open <topic>")
		return
	}
	if _, err := r.machine.Open(ctx, r.ws, label, id); err != nil {
		r.fail(err)
		return
	}
	sess := r.ws.Session()
	systemColor.Fprintf(r.out, "Discussion: %s\n", sess.TopicLabel)
	for _, msg := range sess.History {
		r.printMessage(msg)
	}
	if sess.Notes != "" {
		dimColor.Fprintf(r.out, "Notes:\n%s\n", sess.Notes)
	}
}

func (r *repl) resume(ctx context.Context, arg string) {
	recent := r.ws.Recent()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(recent) {
		errorColor.Fprintf(r.out, "Usage: /resume N (1-%d)\n", len(recent))
		return
	}
	item := recent[n-1]
	r.open(ctx, item.TopicLabel, item.TopicId)
}

func (r *repl) send(ctx context.Context, text string) {
	if r.ws.State() != discussion.StateActiveDiscussion {
		errorColor.Fprintln(r.out, "Open a discussion first: /open <topic>")
		return
	}
	before := len(r.ws.Session().History)
	err := r.machine.SendMessage(ctx, r.ws, text)
	r.printNewMessages(before + 1)
	if err != nil {
		r.fail(err)
	}
}

func (r *repl) suggestions(ctx context.Context, isNewSet bool) {
	before := len(r.ws.Session().History)
	err := r.machine.RequestSuggestions(ctx, r.ws, isNewSet)
	r.printNewMessages(before)
	if err != nil {
		r.fail(err)
	}
}

func (r *repl) printNewMessages(from int) {
	history := r.ws.Session().History
	for i := from; i < len(history); i++ {
		r.printMessage(history[i])
	}
}

func (r *repl) notes(ctx context.Context, text string) {
	if text == "" {
		notes := r.ws.Session().Notes
		if notes == "" {
			dimColor.Fprintln(r.out, "(no notes)")
			return
		}
		fmt.Fprintln(r.out, notes)
		return
	}

	r.mu.Lock()
	previous := r.lastNotes
	r.lastNotes = text
	r.mu.Unlock()

	r.machine.SetLocalEditing(r.ws, true)
	err := r.machine.SaveNotes(ctx, r.ws, text)
	r.machine.SetLocalEditing(r.ws, false)
	if err != nil && !isPersistError(err) {
		r.mu.Lock()
		r.lastNotes = previous
		r.mu.Unlock()
	}
	if err != nil {
		r.fail(err)
		return
	}
	systemColor.Fprintln(r.out, "Notes saved.")
}

func (r *repl) delete(ctx context.Context) {
	deleted, err := r.machine.Delete(ctx, r.ws, discussion.ConfirmFunc(r.confirm))
	if err != nil {
		r.fail(err)
		return
	}
	if deleted {
		systemColor.Fprintln(r.out, "Discussion deleted.")
		r.printRecent()
	}
}

func (r *repl) confirm(_ context.Context, prompt string) (bool, error) {
	systemColor.Fprintf(r.out, "%s [y/N] ", prompt)
	if !r.in.Scan() {
		return false, r.in.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(r.in.Text()))
	return answer == "y" || answer == "yes", nil
}

func (r *repl) printMessage(msg entity.Message) {
	if msg.Role == entity.MessageRoleUser {
		userColor.Fprintf(r.out, "you: %s\n", msg.Text)
		return
	}
	modelColor.Fprintf(r.out, "%s\n", msg.Text)
}

func (r *repl) printRecent() {
	if r.ws.State() == discussion.StateActiveDiscussion {
		return
	}
	recent := r.ws.Recent()
	if len(recent) == 0 {
		dimColor.Fprintln(r.out, "No recent discussions. Start one with /open <topic>.")
		return
	}
	systemColor.Fprintln(r.out, "Recent discussions:")
	for i, item := range recent {
		fmt.Fprintf(r.out, "  %d. %s", i+1, item.TopicLabel)
		if !item.LastUpdated.IsZero() {
			dimColor.Fprintf(r.out, "  (%s)", item.LastUpdated.Local().Format("Jan 2 15:04"))
		}
		fmt.Fprintln(r.out)
	}
}

func isPersistError(err error) bool {
	var persistErr *apperror.PersistError
	return errors.As(err, &persistErr)
}

// syncWriter serializes writes from the command loop and from renders that
// arrive on store goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (r *repl) fail(err error) {
	errorColor.Fprintln(r.out, apperror.UserMessage(err))
	if discussion.IsNavigationReset(err) {
		r.printRecent()
	}
}
