// Command blazert runs the runtime's end-to-end scenarios and reports
// each one.
package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/GoBlaze/blazert"
	"github.com/GoBlaze/blazert/config"
	"github.com/GoBlaze/blazert/logging"
)

func main() {
	var (
		cfgPath = pflag.StringP("config", "c", "", "TOML configuration file")
		workers = pflag.IntP("workers", "w", 0, "worker count (overrides the configuration)")
		only    = pflag.StringSliceP("run", "r", nil, "scenarios to run (default all)")
		timeout = pflag.Duration("timeout", 30*time.Second, "limit for each scenario")
		list    = pflag.Bool("list", false, "list scenarios and exit")
	)
	pflag.Parse()

	if *list {
		for _, s := range scenarios {
			fmt.Printf("%-10s %s\n", s.name, s.about)
		}
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logging.L().Fatal("%v", err)
	}
	log := logging.New(cfg.LogLevel)
	logging.SetDefault(log)

	rt, err := blazert.New(blazert.WithConfig(cfg), blazert.WithWorkers(*workers), blazert.WithLogger(log))
	if err != nil {
		log.Fatal("%v", err)
	}

	color := isatty.IsTerminal(os.Stdout.Fd())
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return blazert.DefaultColors.Paint(c, s)
	}
	if color {
		fmt.Print(blazert.Banner(blazert.DefaultColors.Cyan))
	} else {
		fmt.Print(blazert.Banner(""))
	}

	failed := 0
	for _, s := range scenarios {
		if len(*only) > 0 && !slices.Contains(*only, s.name) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		start := time.Now()
		detail, err := s.run(ctx, rt)
		cancel()
		took := time.Since(start).Truncate(time.Microsecond)
		if err != nil {
			failed++
			fmt.Printf("%s %-10s %v (%s)\n", paint(blazert.DefaultColors.Red, "FAIL"), s.name, err, took)
			continue
		}
		fmt.Printf("%s %-10s %s (%s)\n", paint(blazert.DefaultColors.Green, "ok  "), s.name, detail, took)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		log.Error("shutdown: %v", err)
		failed++
	}
	if failed > 0 {
		cancel()
		os.Exit(1)
	}
}

// loadConfig reads path when given, then lets the environment override
// it.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
