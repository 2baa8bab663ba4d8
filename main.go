package main

import (
	"context"
	"fmt"
	"github.com/fzft/go-epoll-echo/config"
	"github.com/fzft/go-epoll-echo/log"
	"github.com/fzft/go-epoll-echo/server"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"os"
)

func main() {
	flags := config.BindFlags(pflag.CommandLine)
	pflag.Parse()

	if flags.Version {
		fmt.Printf("epoll-echo %s\n", Version())
		return
	}

	cfg, err := flags.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if err := log.InitLogger(cfg.LogOptions()); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := server.New(cfg).Run(context.Background()); err != nil {
		log.Logger.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}
