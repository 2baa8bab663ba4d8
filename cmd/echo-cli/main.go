package main

import (
	"fmt"
	"github.com/fzft/go-epoll-echo/cli"
	"github.com/spf13/pflag"
	"os"
)

func main() {
	var config cli.Config
	pflag.StringVarP(&config.Host, "host", "h", "127.0.0.1", "server hostname")
	pflag.IntVarP(&config.Port, "port", "p", 8080, "server port")
	pflag.DurationVar(&config.ReplyTimeout, "reply-timeout", cli.DefaultReplyTimeout, "how long to wait for a reply to each line")
	pflag.Parse()

	c := cli.New(config, os.Stdout)
	if err := c.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.Run(os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		c.Close()
		os.Exit(1)
	}
}
