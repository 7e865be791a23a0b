package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/cyberinferno/hashchat/chat"
	"github.com/cyberinferno/hashchat/client"
	"github.com/cyberinferno/hashchat/config"
)

// Options contains the flag options. Positional arguments override the
// configuration file and flags.
type Options struct {
	Config string `short:"c" long:"config" description:"TOML configuration file."`
	Codec  string `long:"codec" description:"Wire codec." choice:"text" choice:"binary"`

	Args struct {
		Addr string `positional-arg-name:"addr" description:"Server host:port."`
		Nick string `positional-arg-name:"nick" description:"Nickname to claim."`
	} `positional-args:"yes"`
}

func fail(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.Usage = "[OPTIONS] [addr] [nick]"
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	cc, err := clientConfig(options)
	if err != nil {
		fail(2, "%v\n", err)
	}

	c, err := client.New(client.FromConfig(cc))
	if err != nil {
		fail(2, "%v\n", err)
	}
	defer c.Close()

	c.OnText(func(e client.TextEvent) {
		fmt.Print(e.Text)
	})
	c.OnRejected(func(nick string) {
		fmt.Fprintf(os.Stderr, "nickname %q is taken\n", nick)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		fail(1, "connect %s: %v\n", cc.Addr, err)
	}

	go readInput(c, os.Stdin)

	select {
	case <-ctx.Done():
	case <-c.Done():
		if err := c.Err(); err != nil && !errors.Is(err, chat.ErrNicknameTaken) {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
		}
	}
}

func clientConfig(options Options) (config.ClientConfig, error) {
	cfg := config.Defaults()
	if options.Config != "" {
		loaded, err := config.Load(options.Config)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}

	cc := cfg.Client
	if options.Codec != "" {
		cc.Codec = options.Codec
	}
	if options.Args.Addr != "" {
		cc.Addr = options.Args.Addr
	}
	if options.Args.Nick != "" {
		cc.Nick = options.Args.Nick
	}
	if cc.Nick == "" {
		return cc, errors.New("a nickname is required")
	}

	return cc, nil
}

// readInput sends every line of r, keeping its line terminator.
func readInput(c *client.Client, r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if serr := c.Send(line); serr != nil {
				fmt.Fprintf(os.Stderr, "%v\n", serr)
			}
		}
		if err != nil {
			return
		}
	}
}
