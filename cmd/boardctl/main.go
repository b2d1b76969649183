package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"taskboard/internal/apiclient"
	"taskboard/internal/board"
	"taskboard/internal/boardview"
	"taskboard/internal/config"
	"taskboard/internal/live"
	"taskboard/internal/logger"
	"taskboard/internal/notify"
	"taskboard/internal/projector"
	"taskboard/internal/session"
	"taskboard/internal/wire"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const BoardCtlVersion = "0.1.0"

const loadTimeout = 15 * time.Second

func main() {
	usage := `Board control.

Defaults for the urls come from API_BASE_URL and WS_URL.

Usage:
    boardctl login [--api_url=<api_url>] --email=<email> --password=<password>
    boardctl watch [--api_url=<api_url>] [--ws_url=<ws_url>] --jwt=<jwt> <board_id>
        [--search=<text>] [--priority=<priority>] [--mine]
    boardctl move [--api_url=<api_url>] [--ws_url=<ws_url>] --jwt=<jwt> <board_id> <task_id> <column>
    boardctl tasks [--ws_url=<ws_url>] --jwt=<jwt> [--follow]
    boardctl -h | --help
    boardctl --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --api_url=<api_url>
    --ws_url=<ws_url>
    --email=<email>
    --password=<password>
    --jwt=<jwt>             Token printed by login.
    --search=<text>         Only show tasks whose title or description contains text.
    --priority=<priority>   LOW, MEDIUM or HIGH.
    --mine                  Only show tasks assigned to you.
    --follow                Keep printing your task list as it changes.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BoardCtlVersion)
	if err != nil {
		panic(err)
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	if url, _ := opts.String("--api_url"); url != "" {
		cfg.APIBaseURL = url
	}
	if url, _ := opts.String("--ws_url"); url != "" {
		cfg.WSURL = url
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if login_, _ := opts.Bool("login"); login_ {
		err = login(ctx, cfg, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(ctx, cfg, opts)
	} else if move_, _ := opts.Bool("move"); move_ {
		err = move(ctx, cfg, opts)
	} else if tasks_, _ := opts.Bool("tasks"); tasks_ {
		err = tasks(ctx, cfg, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func login(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")

	resp, err := apiclient.New(cfg.APIBaseURL, "").Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Println(resp.Token)
	return nil
}

// app is one authenticated board view over a live connection.
type app struct {
	conn  *live.Conn
	view  *boardview.Board
	notes *notify.Channel
}

func open(ctx context.Context, cfg *config.Config, opts docopt.Opts) (*app, int64, error) {
	token, _ := opts.String("--jwt")
	identity, err := session.FromToken(token)
	if err != nil {
		return nil, 0, err
	}
	boardID, err := parseID(opts, "<board_id>")
	if err != nil {
		return nil, 0, err
	}

	conn := dialer(cfg, token)

	notes := notify.NewChannel(32)
	view := boardview.New(boardview.Deps{
		Live:     live.NewSubscriber(conn, logger.For("subscriber")),
		API:      apiclient.New(cfg.APIBaseURL, token),
		Identity: session.Static(identity),
		Notifier: notify.Multi{notes, notify.Log{Entry: logger.For("notify")}},
		Log:      logger.For("board"),
	})
	if err := view.Open(ctx, boardID); err != nil {
		conn.Disconnect()
		return nil, 0, err
	}
	return &app{conn: conn, view: view, notes: notes}, boardID, nil
}

func dialer(cfg *config.Config, token string) *live.Conn {
	settings := live.DefaultSettings(cfg.WSURL)
	settings.Header = http.Header{"Authorization": {"Bearer " + token}}
	settings.ReconnectAttempts = cfg.WSReconnectAttempts
	settings.ReconnectDelay = cfg.WSReconnectDelay
	return live.NewConn(settings, logger.For("live"))
}

func (a *app) close() {
	a.view.Close()
	if err := a.conn.Disconnect(); err != nil {
		log.WithError(err).Debug("disconnect")
	}
}

func watch(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	filter, err := parseFilter(opts)
	if err != nil {
		return err
	}
	a, _, err := open(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.close()

	views := make(chan projector.View, 1)
	cancel := a.view.OnChange(func(v projector.View) {
		select {
		case views <- v:
		default:
			// keep only the latest
			select {
			case <-views:
			default:
			}
			views <- v
		}
	})
	defer cancel()
	a.view.SetFilter(filter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case v := <-views:
				if !v.Loading {
					render(os.Stdout, v)
				}
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case n := <-a.notes.C:
				fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Kind, n.Title, n.Message)
			}
		}
	})
	return g.Wait()
}

func move(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	taskID, err := parseID(opts, "<task_id>")
	if err != nil {
		return err
	}
	column, _ := opts.String("<column>")
	target := board.ColumnKey(strings.ToLower(column))
	if !target.Valid() {
		return fmt.Errorf("unknown column %q, want one of %v", column, board.Keys())
	}

	a, _, err := open(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := waitLoaded(ctx, a.view); err != nil {
		return err
	}
	if err := a.view.PickUp(taskID); err != nil {
		return err
	}
	if err := a.view.Drop(ctx, target); err != nil {
		return err
	}
	a.view.Wait()

	for {
		select {
		case n := <-a.notes.C:
			fmt.Printf("%s: %s\n", n.Title, n.Message)
			if n.Kind == notify.Error {
				return errors.New("move failed")
			}
		default:
			return nil
		}
	}
}

// tasks prints the caller's assigned tasks across every board.
func tasks(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	token, _ := opts.String("--jwt")
	identity, err := session.FromToken(token)
	if err != nil {
		return err
	}
	conn := dialer(cfg, token)
	defer conn.Disconnect()
	sub := live.NewSubscriber(conn, logger.For("subscriber"))

	if follow, _ := opts.Bool("--follow"); !follow {
		lctx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()
		feed, err := sub.GetUserTasks(lctx, identity.UserID)
		if err != nil {
			return err
		}
		renderFeed(os.Stdout, feed)
		return nil
	}

	feeds := make(chan wire.UserTasks, 1)
	ut, err := sub.SubscribeToUserTasks(ctx, identity.UserID, func(f wire.UserTasks) {
		select {
		case feeds <- f:
		default:
			select {
			case <-feeds:
			default:
			}
			feeds <- f
		}
	}, func(event string, n wire.TaskNotice) {
		fmt.Fprintf(os.Stderr, "[%s] #%d %s: %s\n", event, n.TaskID, n.Title, n.Message)
	})
	if err != nil {
		return err
	}
	defer ut.Dispose()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-feeds:
			renderFeed(os.Stdout, f)
		}
	}
}

func waitLoaded(ctx context.Context, view *boardview.Board) error {
	loaded := make(chan struct{})
	var once sync.Once
	cancel := view.OnChange(func(v projector.View) {
		if !v.Loading {
			once.Do(func() { close(loaded) })
		}
	})
	defer cancel()
	if !view.View().Loading {
		return nil
	}

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(loadTimeout):
		return errors.New("timed out waiting for board data")
	}
}

func parseID(opts docopt.Opts, key string) (int64, error) {
	raw, _ := opts.String(key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", strings.Trim(key, "<>"), raw)
	}
	return id, nil
}

func parseFilter(opts docopt.Opts) (projector.Filter, error) {
	f := projector.DefaultFilter()
	f.Search, _ = opts.String("--search")
	f.AssignedToMe, _ = opts.Bool("--mine")
	if p, _ := opts.String("--priority"); p != "" {
		f.Priority = board.Priority(strings.ToUpper(p))
		if !f.Priority.Valid() {
			return f, fmt.Errorf("unknown priority %q", p)
		}
	}
	return f, nil
}
