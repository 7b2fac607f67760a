// Command dumecho is a minimal demonstration binary wired directly onto
// package dum: it stands up a Dispatcher bound to a live SipgoStack and
// either answers every inbound INVITE with a 200 (server mode) or places
// one outbound INVITE and waits for it to be answered (client mode).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sipdum/dum/dum"
	"github.com/sipdum/dum/feature"
	"github.com/sipdum/dum/metrics"
	"github.com/sipdum/dum/profile"
	"github.com/sipdum/dum/sipstack"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:5060", "listen address")
		network    = flag.String("network", "udp", "transport: udp, tcp, ws")
		username   = flag.String("user", "alice", "local username")
		domain     = flag.String("domain", "example.com", "local domain")
		mode       = flag.String("mode", "server", "mode: server, client")
		target     = flag.String("target", "sip:bob@127.0.0.1:5061", "call target (client mode)")
		authUser   = flag.String("auth-user", "", "require digest auth for this username (server mode)")
		authPass   = flag.String("auth-pass", "", "password for -auth-user")
		debug      = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if *debug {
		logLevel = zerolog.DebugLevel
		sip.SIPDebug = true
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(logLevel).With().Timestamp().Logger()

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(*username))
	if err != nil {
		logger.Fatal().Err(err).Msg("dumecho: building user agent")
	}

	stack, err := sipstack.NewSipgoStack(ua, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("dumecho: building sip stack")
	}
	defer stack.Close()

	master, err := profile.NewMasterProfile()
	if err != nil {
		logger.Fatal().Err(err).Msg("dumecho: building master profile")
	}

	selfAddr := sip.Uri{User: *username, Host: *domain}
	up, err := profile.NewUserProfile(master, selfAddr, profile.WithDisplayName(*username))
	if err != nil {
		logger.Fatal().Err(err).Msg("dumecho: building user profile")
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	opts := []dum.Option{
		dum.WithLogger(logger),
		dum.WithMetrics(collector),
	}
	if *mode == "server" {
		opts = append(opts, dum.WithAutoAnswerInvite("", nil))
	}
	if *authUser != "" {
		creds := credentialMap{*authUser: *authPass}
		auth := feature.NewServerAuthManager(*domain, "dumecho", creds)
		opts = append(opts, dum.WithFeatures(feature.NewSet(auth, nil)))
	}

	dispatcher := dum.New(stack, master, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := stack.ListenAndServe(ctx, *network, *listenAddr); err != nil {
			logger.Error().Err(err).Msg("dumecho: listener stopped")
		}
	}()

	go runDispatcher(ctx, dispatcher, logger)

	switch *mode {
	case "server":
		logger.Info().Str("addr", *listenAddr).Msg("dumecho: listening, answering inbound invites")
	case "client":
		logger.Info().Str("target", *target).Msg("dumecho: placing call")
		placeCall(ctx, dispatcher, up, *target, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q: want server or client\n", *mode)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("dumecho: shutting down")
}

// runDispatcher is the single goroutine allowed to touch dispatcher,
// draining its event queue for the lifetime of ctx.
func runDispatcher(ctx context.Context, d *dum.Dispatcher, logger zerolog.Logger) {
	for {
		more, err := d.Process(ctx, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("dumecho: dispatcher process error")
			continue
		}
		for more {
			more, err = d.Process(ctx, 0)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("dumecho: dispatcher process error")
				break
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func placeCall(ctx context.Context, d *dum.Dispatcher, up *profile.UserProfile, target string, logger zerolog.Logger) {
	var uri sip.Uri
	if err := sip.ParseUri(target, &uri); err != nil {
		logger.Fatal().Err(err).Str("target", target).Msg("dumecho: invalid target uri")
	}

	ci, err := d.StartInvite(ctx, up, uri, nil, "")
	if err != nil {
		logger.Error().Err(err).Msg("dumecho: failed to place call")
		return
	}

	go func() {
		last := ci.State()
		logger.Info().Str("state", last).Msg("dumecho: call state")
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s := ci.State(); s != last {
					last = s
					logger.Info().Str("state", last).Msg("dumecho: call state")
				}
				if ci.Done() {
					return
				}
			}
		}
	}()
}

// credentialMap is the simplest possible feature.CredentialSource: one
// username mapped to one password, for demonstration only.
type credentialMap map[string]string

func (c credentialMap) Lookup(username string) (string, bool) {
	p, ok := c[username]
	return p, ok
}
