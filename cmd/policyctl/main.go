// policyctl validates and publishes negotiation policies and toggles the
// cache-backed kill switches.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"bargain/internal/bargain/repository"
	"bargain/internal/cache"
	"bargain/internal/policy"
	"bargain/pkg/clock"
	"bargain/pkg/config"
	"bargain/pkg/model"
	"bargain/pkg/sanitizer"

	"github.com/spf13/pflag"
)

const (
	JobName = "policyctl"

	commandTimeout = 30 * time.Second
)

var errUsage = errors.New("usage: policyctl <validate|publish|show|flag|promo> [flags] [args]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "validate":
		return runValidate(args[1:], out)
	case "publish":
		return runPublish(args[1:], out)
	case "show":
		return runShow(args[1:], out)
	case "flag":
		return runFlag(args[1:], out)
	case "promo":
		return runPromo(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
}

func runValidate(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: policyctl validate <policy.yaml>")
	}

	raw, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	p, err := policy.Parse(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "policy %s is valid (checksum %s)\n", p.Version, p.Checksum)
	for _, t := range model.ProductTypes {
		rule, ok := p.Rule(t)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  %-12s min_margin=%.2f max_discount=%.0f%% opening=%.0f%%\n",
			t, rule.MinMarginUSD, rule.MaxDiscountPct*100, rule.OpeningDiscountPct*100)
	}
	return nil
}

func runPublish(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
	dryRun := flagSet.Bool("dry-run", false, "validate only, do not publish")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: policyctl publish [--dry-run] <policy.yaml>")
	}
	if *dryRun {
		return runValidate(flagSet.Args(), out)
	}

	raw, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}

	cfg, registry, _ := connect(true)
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	p, err := registry.Publish(ctx, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "published policy %s (checksum %s)\n", p.Version, p.Checksum)
	return nil
}

func runShow(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
	version := flagSet.String("version", "", "show a specific version instead of the active one")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, registry, _ := connect(true)
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var p *policy.Policy
	if *version != "" {
		var err error
		if p, err = registry.Version(ctx, *version); err != nil {
			return err
		}
	} else {
		if err := registry.Load(ctx); err != nil {
			return err
		}
		p = registry.Active()
	}
	fmt.Fprintf(out, "version:    %s\nchecksum:   %s\nmax_rounds: %d\nnever_loss: %t\n",
		p.Version, p.Checksum, p.Global.MaxRounds, p.Global.NeverLoss)
	return nil
}

func runFlag(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("flag", pflag.ContinueOnError)
	enable := flagSet.Bool("enable", false, "turn the flag on")
	disable := flagSet.Bool("disable", false, "turn the flag off")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 || *enable == *disable {
		return fmt.Errorf("usage: policyctl flag <%s|%s> (--enable|--disable)", cache.FlagBargainEnabled, cache.FlagPromosEnabled)
	}
	name := flagSet.Arg(0)
	if name != cache.FlagBargainEnabled && name != cache.FlagPromosEnabled {
		return fmt.Errorf("unknown flag %q", name)
	}

	cfg, _, c := connect(false)
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := cache.SetFlag(ctx, c, name, *enable); err != nil {
		return err
	}
	fmt.Fprintf(out, "flag %s set to %t\n", name, *enable)
	return nil
}

func runPromo(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("promo", pflag.ContinueOnError)
	enable := flagSet.Bool("enable", false, "re-enable the promo code")
	disable := flagSet.Bool("disable", false, "kill the promo code")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 || *enable == *disable {
		return errors.New("usage: policyctl promo <CODE> (--enable|--disable)")
	}
	code := sanitizer.SanitizeCode(flagSet.Arg(0))

	cfg, _, c := connect(false)
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := cache.SetPromoDisabled(ctx, c, code, *disable); err != nil {
		return err
	}
	fmt.Fprintf(out, "promo %s disabled=%t\n", code, *disable)
	return nil
}

// connect opens the shared cache and, when withStore is set, the policy
// store. Kill switches live only in Redis, so it is required.
func connect(withStore bool) (*config.Config, *policy.Registry, cache.Cache) {
	cfg := config.LoadJob(JobName)
	cfg.SetRedis()
	if cfg.Client.Redis == nil && !withStore {
		cfg.Log.Fatal("REDIS_ADDR is required to change kill switches")
	}

	var c cache.Cache
	if cfg.Client.Redis != nil {
		c = cache.NewRedis(cfg.Client.Redis, cfg.RedisOpTimeout)
	} else {
		c = cache.NewMemory(clock.Real())
	}

	if !withStore {
		return cfg, nil, c
	}
	cfg.SetMongo()
	return cfg, policy.NewRegistry(repository.NewMongoPolicyStore(cfg), c, cfg.Log, time.Now), c
}
