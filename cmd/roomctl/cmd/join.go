package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/service"
	"github.com/cwrk-planet/classroom-service/internal/session"
	"github.com/cwrk-planet/classroom-service/internal/session/wsclient"
	"github.com/cwrk-planet/classroom-service/internal/store"
)

const joinHelp = `Lines typed on stdin are sent as chat messages. Commands:
  /stream [low|medium|high]   start broadcasting
  /stop                       stop broadcasting
  /who                        list participants
  /leave                      leave the room and exit`

func newJoinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join <roomId>",
		Short: "Join a room as a live session client",
		Long:  "Join a room as a live session client.\n\n" + joinHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := domain.User{
				ID:       a.v.GetString(userIDKey),
				Username: a.v.GetString(usernameKey),
				Role:     domain.Role(a.v.GetString(roleKey)),
			}
			if user.ID == "" {
				return errors.New("--user-id is required")
			}
			if user.Username == "" {
				user.Username = user.ID
			}
			if !user.Role.Valid() {
				return fmt.Errorf("unknown role %q", user.Role)
			}
			return a.join(cmd.Context(), args[0], user, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) participantCache() (store.ParticipantCache, func()) {
	addr := a.v.GetString(redisAddrKey)
	if addr == "" {
		return store.NewMemoryParticipantCache(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return store.NewRedisParticipantCache(rdb), func() { _ = rdb.Close() }
}

func (a *app) join(ctx context.Context, roomID string, user domain.User, in io.Reader, out io.Writer) error {
	server := a.v.GetString(serverKey)
	cache, closeCache := a.participantCache()
	defer closeCache()

	st, err := a.provider.Instance(store.Capabilities{
		Context: store.Unprivileged,
		BaseURL: server,
		Cache:   cache,
	})
	if err != nil {
		return err
	}

	view := &printer{out: out, self: user.ID}
	coord := session.NewCoordinator(session.Config{
		RoomID:    roomID,
		User:      user,
		Transport: wsclient.New(server),
		Media:     session.HeadlessMedia{},
		Members:   service.NewMemberService(st, a.now),
		OnChange:  view.render,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coord.Run(runCtx)

	if err := coord.Mount(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "joining %s as %s (%s); /leave to exit\n", roomID, user.Username, user.Role)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-runCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Run tears the session down once runCtx is cancelled.
			cancel()
			<-coord.Done()
			return nil
		case <-coord.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return coord.ExitRoom(ctx)
			}
			done, err := a.handleLine(ctx, coord, view, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if done {
				return nil
			}
		}
	}
}

func (a *app) handleLine(ctx context.Context, coord *session.Coordinator, view *printer, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, coord.SendMessage(ctx, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/stream":
		q := domain.QualityMedium
		if len(fields) > 1 {
			q = domain.StreamQuality(fields[1])
		}
		return false, coord.StartStream(ctx, q)
	case "/stop":
		return false, coord.StopStream(ctx)
	case "/who":
		view.who(coord.Snapshot())
		return false, nil
	case "/leave":
		return true, coord.ExitRoom(ctx)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

// printer writes what changed between two states.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	self   string
	last   session.State
	notice string
}

func (p *printer) render(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Losing the connection shows up as a system message from the session.
	if s.IsConnected && !p.last.IsConnected {
		fmt.Fprintln(p.out, "* connected")
	}

	// A room_state snapshot replaces the history; print only what is new.
	start := len(p.last.Messages)
	if start > len(s.Messages) {
		start = 0
	}
	for _, m := range s.Messages[start:] {
		fmt.Fprintf(p.out, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), m.Username, m.Content)
	}

	if len(s.Participants) != len(p.last.Participants) {
		fmt.Fprintf(p.out, "* %d participant(s)\n", len(s.Participants))
	}
	switch {
	case s.Stream != nil && p.last.Stream == nil:
		fmt.Fprintf(p.out, "* %s is live (%s)\n", s.Stream.StreamerID, s.Stream.Quality)
	case s.Stream == nil && p.last.Stream != nil:
		fmt.Fprintln(p.out, "* broadcast ended")
	}
	if s.SystemMessage != "" && s.SystemMessage != p.notice {
		fmt.Fprintf(p.out, "* %s\n", s.SystemMessage)
	}
	p.notice = s.SystemMessage
	p.last = s
}

func (p *printer) who(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range s.Participants {
		marker := ""
		if part.ID == p.self {
			marker = " (you)"
		}
		live := ""
		if part.IsStreaming {
			live = " [live]"
		}
		fmt.Fprintf(p.out, "  %s %s%s%s\n", part.Role, part.Username, live, marker)
	}
}
