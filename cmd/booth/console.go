package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/api"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/booth"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/session"
)

// Registry lists and registers the motions and members the booth votes on
type Registry interface {
	ListMotions(ctx context.Context) ([]models.Motion, error)
	CreateMember(ctx context.Context, member models.NewMember) (*models.Member, error)
	CreateMotion(ctx context.Context, motion models.NewMotion) (*models.Motion, error)
}

// console maps operator commands onto booth operations
type console struct {
	booth    *booth.Booth
	registry Registry
	out      io.Writer
	notifier booth.Notifier
}

const helpText = `Commands:
  motions            list motions
  start <motion-id>  open voting on a motion
  members            list the member queue
  select <member-id> give a member the floor
  next               select the next member who has not voted
  clear              release the floor
  record             record the active member's vote
  stop               stop the recording and submit it
  stats              show statistics of the open motion
  status             show the session state
  end                close voting
  reset              forget the closed session and its voted members
  add-member <name> | <constituency> [| <role>]
                     register a member
  enroll <member-id> record and save a member's voice print
  new-motion <title> | <proposed by> [| <description>]
                     create a pending motion
  help               show this help
  quit               exit`

func (c *console) help() {
	fmt.Fprintln(c.out, helpText)
}

// execute runs one command line and reports whether the operator quit
func (c *console) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	var err error

	switch cmd {
	case "help", "?":
		c.help()
	case "quit", "exit":
		return true
	case "motions":
		err = c.listMotions(ctx)
	case "members", "queue":
		err = c.listMembers(ctx)
	case "start":
		if len(args) != 1 {
			err = errors.New("usage: start <motion-id>")
			break
		}
		err = c.booth.StartVoting(ctx, args[0])
	case "select":
		if len(args) != 1 {
			err = errors.New("usage: select <member-id>")
			break
		}
		var member *models.Member
		if member, err = c.booth.SelectMember(ctx, args[0]); err == nil {
			fmt.Fprintf(c.out, "Active: %s (%s)\n", member.Name, member.Constituency)
		}
	case "next":
		var member *models.Member
		if member, err = c.booth.NextMember(ctx); err == nil {
			fmt.Fprintf(c.out, "Active: %s (%s)\n", member.Name, member.Constituency)
		}
	case "clear":
		err = c.booth.ClearMember()
	case "record":
		err = c.booth.Record(ctx)
	case "stop":
		err = c.booth.Stop()
	case "stats":
		var stats *models.VoteStatistics
		if stats, err = c.booth.Statistics(ctx); err == nil {
			fmt.Fprintln(c.out, booth.FormatStatistics(*stats))
		}
	case "status":
		c.printStatus()
	case "end":
		var stats *models.VoteStatistics
		if stats, err = c.booth.EndVoting(ctx); err == nil && stats != nil {
			fmt.Fprintln(c.out, "Final: "+booth.FormatStatistics(*stats))
		}
	case "reset":
		if err = c.booth.ResetSession(ctx); err == nil {
			fmt.Fprintln(c.out, "Session reset")
		}
	case "add-member":
		err = c.addMember(ctx, rest)
	case "enroll":
		if len(args) != 1 {
			err = errors.New("usage: enroll <member-id>")
			break
		}
		err = c.booth.EnrollVoicePrint(ctx, args[0])
	case "new-motion":
		err = c.newMotion(ctx, rest)
	default:
		err = fmt.Errorf("unknown command %q, type help", cmd)
	}

	if err != nil {
		c.notifier.Notify(booth.Error(api.ErrorMessage(err, err.Error())))
	}
	return false
}

// splitArgs splits "a | b | c" into at least min and at most max trimmed,
// non-empty parts
func splitArgs(s string, min, max int) ([]string, bool) {
	parts := strings.Split(s, "|")
	if len(parts) < min || len(parts) > max {
		return nil, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil, false
		}
	}
	return parts, true
}

func (c *console) addMember(ctx context.Context, rest string) error {
	parts, ok := splitArgs(rest, 2, 3)
	if !ok {
		return errors.New("usage: add-member <name> | <constituency> [| <role>]")
	}
	req := models.NewMember{Name: parts[0], Constituency: parts[1], Role: "MP"}
	if len(parts) == 3 {
		req.Role = parts[2]
	}

	member, err := c.registry.CreateMember(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Member %s registered as %s\n", member.Name, member.ID)
	return nil
}

func (c *console) newMotion(ctx context.Context, rest string) error {
	parts, ok := splitArgs(rest, 2, 3)
	if !ok {
		return errors.New("usage: new-motion <title> | <proposed by> [| <description>]")
	}
	req := models.NewMotion{Title: parts[0], ProposedBy: parts[1]}
	if len(parts) == 3 {
		req.Description = parts[2]
	}

	motion, err := c.registry.CreateMotion(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Motion %q created as %s\n", motion.Title, motion.ID)
	return nil
}

func (c *console) listMotions(ctx context.Context) error {
	motions, err := c.registry.ListMotions(ctx)
	if err != nil {
		return err
	}
	if len(motions) == 0 {
		fmt.Fprintln(c.out, "No motions")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tPROPOSED BY")
	for _, m := range motions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Status, m.Title, m.ProposedBy)
	}
	return tw.Flush()
}

func (c *console) listMembers(ctx context.Context) error {
	waiting, voted, err := c.booth.Queue(ctx)
	if err != nil {
		return err
	}

	active := c.booth.Status().Session.ActiveMember
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCONSTITUENCY\tSTATE")
	for _, m := range waiting {
		state := "waiting"
		if active != nil && active.ID == m.ID {
			state = "active"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Constituency, state)
	}
	for _, m := range voted {
		fmt.Fprintf(tw, "%s\t%s\t%s\tvoted\n", m.ID, m.Name, m.Constituency)
	}
	return tw.Flush()
}

func (c *console) printStatus() {
	status := c.booth.Status()
	snap := status.Session

	if !snap.VotingActive {
		fmt.Fprintln(c.out, "Voting closed")
	} else {
		fmt.Fprintf(c.out, "Voting open on %s, %d voted\n", snap.ActiveMotionID, len(snap.VotedMembers))
	}
	if snap.ActiveMember != nil {
		fmt.Fprintf(c.out, "Active: %s (%s)\n", snap.ActiveMember.Name, snap.ActiveMember.Constituency)
	}
	if status.Recording != "idle" {
		fmt.Fprintf(c.out, "Recording: %s %.0f%%\n", status.Recording, status.Progress)
	}
	if status.Statistics != nil {
		fmt.Fprintln(c.out, booth.FormatStatistics(*status.Statistics))
	}
}

// newProgressPrinter prints recording progress in 20% steps
func newProgressPrinter(w io.Writer) func(float64) {
	var mu sync.Mutex
	last := -1.0
	return func(percent float64) {
		step := math.Floor(percent/20) * 20
		mu.Lock()
		defer mu.Unlock()
		if percent < last {
			last = -1
		}
		if step <= last {
			return
		}
		last = step
		fmt.Fprintf(w, "Recording %3.0f%%\n", step)
	}
}

// newFloorPrinter prints floor releases and the voted count as the
// session moves on from initial, including votes announced by other booths
func newFloorPrinter(w io.Writer, initial session.Snapshot) func(session.Snapshot) {
	var mu sync.Mutex
	var active string
	if initial.ActiveMember != nil {
		active = initial.ActiveMember.Name
	}
	voted := len(initial.VotedMembers)
	return func(snap session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		if snap.ActiveMember == nil && active != "" {
			fmt.Fprintf(w, "Floor released by %s\n", active)
		}
		active = ""
		if snap.ActiveMember != nil {
			active = snap.ActiveMember.Name
		}

		if n := len(snap.VotedMembers); n != voted {
			if n > voted {
				fmt.Fprintf(w, "Voted: %d\n", n)
			}
			voted = n
		}
	}
}
