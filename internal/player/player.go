package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/echowords/internal/config"
	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/peer"
	"github.com/DoyleJ11/echowords/internal/session"
)

var errQuit = errors.New("quit")

// Run joins (or creates) a lobby and plays it from the terminal until ctx
// ends or the user quits.
func Run(ctx context.Context, cfg config.Player, in io.Reader, out io.Writer, log *zap.Logger) error {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	api := peer.NewAPI(cfg.ServerURL, cfg.ClientID)

	code := strings.ToUpper(strings.TrimSpace(cfg.Lobby))
	if code == "" {
		c, err := api.CreateLobby(ctx)
		if err != nil {
			return fmt.Errorf("create lobby: %w", err)
		}
		code = c
		fmt.Fprintf(out, "created lobby %s (invite: %s/lobby/%s/qr)\n", code, strings.TrimSuffix(cfg.ServerURL, "/"), code)
	}
	if _, err := api.NewPlayer(ctx, cfg.Name, code); err != nil {
		return fmt.Errorf("register player: %w", err)
	}

	conn, err := peer.NewConn(cfg.ServerURL, cfg.ClientID, peer.WithLogger(log.Named("peer")))
	if err != nil {
		return err
	}
	_ = conn.Join(code)

	ctl := session.New(session.Config{Lobby: code, ClientID: cfg.ClientID, LineInput: true}, conn.Lobby(code), api,
		session.WithLogger(log.Named("session")))
	conn.OnReconnect(ctl.Reconnected)
	conn.OnState(func(s peer.State) {
		if s != peer.Connected {
			fmt.Fprintf(out, "[%s]\n", s)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(gctx) })
	g.Go(func() error {
		ctl.Run(gctx)
		return nil
	})
	g.Go(func() error { return route(gctx, conn, ctl, code) })
	g.Go(func() error { return render(gctx, ctl, out) })
	if cfg.Bot {
		bot := NewBot(api, cfg.BotDelay, log.Named("bot"))
		g.Go(func() error { return bot.Play(gctx, ctl) })
	}
	g.Go(func() error { return readCommands(gctx, ctl, engine.ParseDifficulty(cfg.Difficulty), in, out) })

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// route hands frames for our lobby to the session.
func route(ctx context.Context, conn *peer.Conn, ctl *session.Controller, code string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-conn.Inbound():
			if in.Lobby != code {
				continue
			}
			if err := ctl.Deliver(ctx, in.From, in.Msg); err != nil {
				return nil
			}
		}
	}
}

func render(ctx context.Context, ctl *session.Controller, out io.Writer) error {
	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-ctl.Updates():
			if s := Status(v); s != last {
				fmt.Fprintln(out, s)
				last = s
			}
		}
	}
}

// readCommands treats each line as an entry for the open slot unless it is
// one of the slash commands.
func readCommands(ctx context.Context, ctl *session.Controller, d engine.Difficulty, in io.Reader, out io.Writer) error {
	if err := ctl.ChooseDifficulty(ctx, d); err != nil {
		return err
	}
	fmt.Fprintln(out, "type /start to begin, /difficulty <tier>, /quit to leave")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return errQuit
			}
			line = l
		}

		cmd, arg := ParseLine(line)
		var err error
		switch cmd {
		case "":
			continue
		case "quit":
			return errQuit
		case "start":
			err = ctl.StartMatch(ctx)
		case "difficulty":
			err = ctl.ChooseDifficulty(ctx, engine.ParseDifficulty(arg))
		case "roster":
			ctl.RefreshRoster()
		case "word":
			var v session.View
			if v, err = ctl.View(ctx); err == nil {
				slot := Slot(v)
				ctl.Type(slot, arg)
				err = ctl.Submit(ctx, slot, arg)
			}
		default:
			err = fmt.Errorf("unknown command /%s", cmd)
		}
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
}

// ParseLine splits "/cmd arg" into its parts. Anything without a leading
// slash is a word.
func ParseLine(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	if !strings.HasPrefix(line, "/") {
		return "word", line
	}
	cmd, arg, _ = strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// Slot is where the next entry goes: the first word not yet re-typed, or the
// new-word slot once every prior word is done.
func Slot(v session.View) int {
	if v.Completed < len(v.State.Words) {
		return v.Completed
	}
	return len(v.State.Words)
}

func Status(v session.View) string {
	var b strings.Builder
	switch {
	case !v.Started:
		fmt.Fprintf(&b, "lobby %s | %d players | waiting to start (%s)", v.Lobby, len(v.Roster), v.Difficulty)
		return b.String()
	case v.CountingDown:
		return "get ready..."
	case v.GameOver:
		fmt.Fprintf(&b, "time! %d words |", len(v.State.Words))
		for seat, e := range v.Roster {
			fmt.Fprintf(&b, " %s %d", e.Username, v.State.Scores[seat])
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%4.0fs | %s", v.Remaining, strings.Join(v.State.Words, " > "))
	if v.MyTurn {
		fmt.Fprintf(&b, " | your turn, slot %d", Slot(v))
	} else if v.ActingSeat < len(v.Roster) {
		fmt.Fprintf(&b, " | %s's turn", v.Roster[v.ActingSeat].Username)
	}
	if v.Phase == engine.PhaseSettling {
		b.WriteString(" (settling)")
	}
	return b.String()
}
