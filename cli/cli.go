package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	HisFileEnv          = "ECHOCLI_HISTFILE"
	HisFileDefault      = ".echocli_history"
	DefaultReplyTimeout = 500 * time.Millisecond
	dialTimeout         = 3 * time.Second
)

var ErrServerClosed = errors.New("server closed the connection")

type Config struct {
	Host         string
	Port         int
	ReplyTimeout time.Duration
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type Cli struct {
	config Config
	conn   net.Conn
	out    io.Writer
}

func New(config Config, out io.Writer) *Cli {
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = DefaultReplyTimeout
	}
	if out == nil {
		out = os.Stdout
	}
	return &Cli{config: config, out: out}
}

// Connect dials the server, dropping any previous connection first.
func (cli *Cli) Connect() error {
	if cli.conn != nil {
		cli.conn.Close()
		cli.conn = nil
	}
	conn, err := net.DialTimeout("tcp", cli.config.addr(), dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "could not connect to %s", cli.config.addr())
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetKeepAlive(true)
	}
	cli.conn = conn
	return nil
}

func (cli *Cli) Close() error {
	if cli.conn == nil {
		return nil
	}
	err := cli.conn.Close()
	cli.conn = nil
	return err
}

// Send writes line plus a newline and collects the reply. Collection stops at
// the first newline or when the reply window passes, whichever is first, so a
// server that answers nothing costs one full window.
func (cli *Cli) Send(line string) ([]byte, error) {
	if cli.conn == nil {
		return nil, errors.New("not connected")
	}
	if _, err := cli.conn.Write([]byte(line + "\n")); err != nil {
		return nil, errors.Wrap(err, "send")
	}

	if err := cli.conn.SetReadDeadline(time.Now().Add(cli.config.ReplyTimeout)); err != nil {
		return nil, err
	}
	defer cli.conn.SetReadDeadline(time.Time{})

	var reply []byte
	buf := make([]byte, 4096)
	for {
		n, err := cli.conn.Read(buf)
		reply = append(reply, buf[:n]...)
		if err == nil {
			if bytes.HasSuffix(reply, []byte("\n")) {
				return reply, nil
			}
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return reply, nil
		}
		if errors.Is(err, io.EOF) {
			return reply, ErrServerClosed
		}
		return reply, err
	}
}

// Run reads lines from in until it is exhausted. A terminal gets the
// interactive prompt with history, anything else is read line by line.
func (cli *Cli) Run(in io.Reader) error {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return cli.repl()
	}
	return cli.pipe(in)
}

func (cli *Cli) pipe(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		reply, err := cli.Send(scanner.Text())
		if len(reply) > 0 {
			cli.out.Write(reply)
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (cli *Cli) repl() error {
	line := NewLineNoise()
	defer line.Close()

	historyFile := HistoryPath()
	if historyFile != "" {
		line.HistoryLoad(historyFile)
	}

	for {
		prompt := cli.config.addr() + "> "
		if cli.conn == nil {
			prompt = "not connected> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			// ctrl-c or ctrl-d
			return nil
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		if historyFile != "" {
			line.HistorySave(historyFile)
		}

		argv := strings.Fields(input)
		switch {
		case len(argv) == 1 && (strings.EqualFold(argv[0], "quit") || strings.EqualFold(argv[0], "exit")):
			return nil
		case len(argv) == 1 && strings.EqualFold(argv[0], "clear"):
			line.ClearScreen(cli.out)
			continue
		case len(argv) == 3 && strings.EqualFold(argv[0], "connect"):
			port, err := strconv.Atoi(argv[2])
			if err != nil {
				fmt.Fprintln(cli.out, "Invalid port number")
				continue
			}
			cli.config.Host, cli.config.Port = argv[1], port
			if err := cli.Connect(); err != nil {
				fmt.Fprintln(cli.out, err)
			}
			continue
		}

		if cli.conn == nil {
			if err := cli.Connect(); err != nil {
				fmt.Fprintln(cli.out, err)
				continue
			}
		}

		start := time.Now()
		reply, err := cli.Send(input)
		switch {
		case len(reply) == 0 && err == nil:
			fmt.Fprintf(cli.out, "(no reply within %s)\n", cli.config.ReplyTimeout)
		case len(reply) > 0:
			fmt.Fprintf(cli.out, "%s", reply)
			if !bytes.HasSuffix(reply, []byte("\n")) {
				fmt.Fprintln(cli.out)
			}
			fmt.Fprintf(cli.out, "(%.2fms)\n", float64(time.Since(start).Microseconds())/1000)
		}
		if err != nil {
			fmt.Fprintln(cli.out, err)
			cli.Close()
		}
	}
}

// HistoryPath is $ECHOCLI_HISTFILE, or ~/.echocli_history when unset.
// An override of /dev/null disables history.
func HistoryPath() string {
	path := os.Getenv(HisFileEnv)
	if path != "" {
		if path == "/dev/null" {
			return ""
		}
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, HisFileDefault)
}
