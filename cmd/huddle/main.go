// huddle is a headless room client. It joins a room, mirrors its widget
// state, and logs every re-render; useful for smoke-testing a hub and for
// observing room traffic without a UI.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/huddlekit/huddle/internal/client"
	"github.com/huddlekit/huddle/internal/client/reconcile"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	endpoint := flag.String("endpoint", "ws://localhost:8080/ws", "websocket endpoint of the huddle server")
	room := flag.String("room", "", "room to join (empty for the default room)")
	user := flag.String("user", "", "badge user to log in as")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	notifier := &logNotifier{user: *user}
	session := client.New(client.Config{
		Endpoint: *endpoint,
		Room:     *room,
		Renderer: logRenderer{},
		Notifier: notifier,
	})
	notifier.session = session

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	log.Info().Str("endpoint", *endpoint).Str("room", *room).Msg("joining")
	session.Run(ctx)
	log.Info().Msg("session ended")
}

type logRenderer struct{}

func (logRenderer) Render(view reconcile.View) {
	log.Info().Int("view", int(view)).Msg("state updated")
}

type logNotifier struct {
	session  *client.Session
	user     string
	loggedIn bool
}

func (n *logNotifier) Warn(message string)  { log.Warn().Msg(message) }
func (n *logNotifier) Block(message string) { log.Error().Msg(message) }

// Status doubles as the login trigger: the badge login can only go out once
// the channel is open.
func (n *logNotifier) Status(connected bool) {
	log.Info().Bool("connected", connected).Msg("connection status")
	if connected && n.user != "" && !n.loggedIn {
		n.loggedIn = true
		n.session.Badges().Login(n.user)
	}
}
