package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/app"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/config"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/swappath"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func main() {
	loadEnv()

	mode := flag.String("mode", "encode", "encode | decode | convert | plan")
	addrs := flag.String("addresses", "", "comma separated hop addresses (encode)")
	version := flag.String("version", "V3", "venue: V2 | V3 | 0 | 1")
	fees := flag.String("fees", "", "comma separated V3 fee tiers, one per pool (encode)")
	path := flag.String("path", "", "0x path bytes (decode)")
	amt := flag.String("amount", "", "readable amount, e.g. 1.5 (convert)")
	decimals := flag.Uint("decimals", 18, "token decimals (convert)")
	name := flag.String("portfolio", "", "portfolio name (plan), defaults to PORTFOLIO_NAME")
	flag.Parse()

	venue, err := models.ParseVenue(*version)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	switch *mode {
	case "encode":
		route, err := parseRoute(*addrs, venue, *fees)
		if err != nil {
			fmt.Println("invalid route:", err)
			os.Exit(2)
		}
		p, err := swappath.Encode(route)
		if err != nil {
			fmt.Println("encode failed:", err)
			os.Exit(1)
		}
		fmt.Println(p.Hex())
	case "decode":
		route, err := swappath.DecodeHex(venue, *path)
		if err != nil {
			fmt.Println("decode failed:", err)
			os.Exit(1)
		}
		for i, hop := range route.Hops {
			if i > 0 && venue == models.VenueV3 {
				fmt.Printf("  fee=%d\n", route.PerHopFee[i-1])
			}
			fmt.Println(hop.Hex())
		}
	case "convert":
		if *decimals > amount.MaxDecimals {
			fmt.Println("decimals out of range")
			os.Exit(2)
		}
		raw, err := amount.ToBaseUnitsString(*amt, uint8(*decimals))
		if err != nil {
			fmt.Println("convert failed:", err)
			os.Exit(1)
		}
		fmt.Println(raw.Dec())
	case "plan":
		if err := plan(*name); err != nil {
			fmt.Println("plan failed:", err)
			os.Exit(1)
		}
	default:
		fmt.Println("invalid -mode (use encode|decode|convert|plan)")
		os.Exit(2)
	}
}

func parseRoute(addrs string, venue models.VenueKind, fees string) (models.Route, error) {
	route := models.Route{Venue: venue}
	for _, a := range splitList(addrs) {
		if !common.IsHexAddress(a) {
			return route, fmt.Errorf("bad address %q", a)
		}
		route.Hops = append(route.Hops, common.HexToAddress(a))
	}
	for _, f := range splitList(fees) {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return route, fmt.Errorf("bad fee %q", f)
		}
		route.PerHopFee = append(route.PerHopFee, uint32(v))
	}
	return route, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// plan previews the next rebalance of a stored portfolio without
// starting it.
func plan(name string) error {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if name != "" {
		cfg.PortfolioName = name
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}
	p, err := a.Factory.Get(cfg.PortfolioName)
	if err != nil {
		return err
	}

	pl, err := p.PreviewPlan(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("plan=%s total_value=%s legs=%d warnings=%d\n", pl.ID, pl.TotalValue.String(), len(pl.Legs), len(pl.Warnings))
	for _, leg := range pl.Legs {
		fmt.Printf("#%d %s token=%s amount_in=%s min_out=%s venue=%s\n",
			leg.Index, leg.Direction, leg.Token.Hex(), leg.AmountIn.String(), leg.MinAmountOut.Dec(), leg.Route.Venue)
	}
	for _, w := range pl.Warnings {
		fmt.Printf("warning %s token=%s: %s\n", w.Kind, w.Token.Hex(), w.Reason)
	}
	return nil
}
