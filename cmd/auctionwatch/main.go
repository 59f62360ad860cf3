// auctionwatch follows one or more live auctions from the terminal. Each
// auction gets its own sync session: an initial REST snapshot, a websocket
// push subscription that reconnects on loss, and a countdown to the end.
// With --bid it also places a bid on the first auction once it is seeded.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"auction-sync/internal/channel"
	"auction-sync/internal/clock"
	"auction-sync/internal/config"
	"auction-sync/internal/models"
	"auction-sync/internal/restclient"
	"auction-sync/internal/session"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var auctionIDs []string
	var bidFlag string

	flagSet := pflag.NewFlagSet("auctionwatch", pflag.ContinueOnError)
	flagSet.StringSliceVarP(&auctionIDs, "auction", "a", nil, "auction id to follow (repeatable)")
	flagSet.StringVar(&bidFlag, "bid", "", "place a bid of this amount on the first auction")
	flagSet.String("base-url", "", "REST base url of the auction source")
	flagSet.String("ws-url", "", "websocket base url of the push source")
	flagSet.String("user-id", "", "bidder id sent with connections and bids")
	flagSet.String("user-name", "", "bidder display name")
	flagSet.String("log-level", "", "log level (debug, info, warn, error)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "usage: auctionwatch --auction ID [--auction ID...] [--bid AMOUNT]")
		flagSet.PrintDefaults()
		return nil
	}
	auctionIDs = append(auctionIDs, flagSet.Args()...)
	if len(auctionIDs) == 0 {
		return errors.New("at least one --auction is required")
	}

	v := config.NewViper()
	if err := bindFlags(v, flagSet); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	utils.SetLevel(cfg.Log.Level)

	var bidAmount decimal.Decimal
	if bidFlag != "" {
		if bidAmount, err = decimal.NewFromString(bidFlag); err != nil {
			return fmt.Errorf("invalid --bid %q: %w", bidFlag, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity := models.User{UserID: cfg.Identity.UserID, Username: cfg.Identity.UserName}
	deps := session.Deps{
		Source: restclient.New(cfg.Client.BaseURL, cfg.Client.HTTPTimeout, identity),
		Dialer: channel.NewWebsocketDialer(cfg.Client.WSURL),
		Clock:  clock.Real(),
		Channel: channel.Config{
			Identity:          identity,
			Token:             cfg.Identity.Token,
			ReconnectInterval: cfg.Channel.ReconnectInterval,
			MaxAttempts:       cfg.Channel.MaxAttempts,
			StableAfter:       cfg.Channel.StableAfter,
		},
		Tick: cfg.Countdown.Tick,
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range auctionIDs {
		var amount decimal.Decimal
		if i == 0 {
			amount = bidAmount
		}
		g.Go(func() error {
			return watch(ctx, deps, id, amount, os.Stdout)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// bindFlags maps command line flags onto their config keys
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"client.base_url":    "base-url",
		"client.ws_url":      "ws-url",
		"identity.user_id":   "user-id",
		"identity.user_name": "user-name",
		"log.level":          "log-level",
	} {
		f := fs.Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}
