// Command nostrkit-bench fetches a single event end to end through the
// host facade, exercising the cache, relay pool, subscription engine and
// tracker together (SPEC_FULL.md §12). Grounded on the teacher's
// cmd/benchmark (flag-driven relay exerciser) and cmd/lerproxy's
// alexflint/go-arg usage for the flag parsing style itself.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"

	"nostrkit.dev/internal/config"
	"nostrkit.dev/pkg/host"
	"nostrkit.dev/pkg/utils/chk"
	"nostrkit.dev/pkg/utils/context"
	"nostrkit.dev/pkg/utils/log"
)

// runArgs mirrors the teacher's flag-table style (cmd/lerproxy.RunArgs),
// using arg tags in place of the teacher's stdlib flag package since this
// is a one-shot CLI rather than a long-running daemon.
type runArgs struct {
	ID      string        `arg:"positional,required" help:"note1/nevent1/naddr1 identifier or 64-char hex event id"`
	Relay   []string      `arg:"-r,--relay,separate" help:"relay URL to query (repeatable); defaults to NOSTRKIT_RELAYS"`
	Timeout time.Duration `arg:"-t,--timeout" default:"10s" help:"overall fetch timeout"`
}

func main() {
	var args runArgs
	arg.MustParse(&args)

	ctx, cancel := signal.NotifyContext(context.Bg(), os.Interrupt)
	defer cancel()
	ctx, cancelTO := context.Timeout(ctx, args.Timeout)
	defer cancelTO()

	cfg, err := config.New()
	if chk.E(err) {
		os.Exit(1)
	}

	h, err := host.New(host.Options{Cfg: cfg, Relays: args.Relay})
	if chk.E(err) {
		os.Exit(1)
	}
	defer h.Close()

	ev, err := h.FetchByIdentifier(ctx, args.ID)
	if chk.E(err) {
		os.Exit(1)
	}
	if ev == nil {
		log.W.F("no event found for %s", args.ID)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(ev, "", "  ")
	if chk.E(err) {
		os.Exit(1)
	}
	fmt.Println(string(out))
}
