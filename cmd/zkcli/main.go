// Command zkcli is a small interactive driver over pkg/zk, grounded on
// the docopt usage-string pattern of connectctl (bringyour-connect) and
// wired to a real terminal for --digest credential entry the way
// provider (bringyour-connect) reads a password with no echo.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/zk"
	"github.com/docopt/docopt-go"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const zkcliVersion = "0.1.0"

func main() {
	usage := `zkcli, a session-oriented client shell.

Usage:
    zkcli --servers=<servers> [--timeout=<ms>] [--chroot=<path>] [--digest]
    zkcli -h | --help

Options:
    -h --help            Show this screen.
    --version            Show version.
    --servers=<servers>  Comma-separated host:port list.
    --timeout=<ms>        Requested session timeout in ms. [default: 10000]
    --chroot=<path>       Virtual root every path is resolved under.
    --digest              Prompt for a digest credential (scheme "digest")
                           and send it with AddAuth before the prompt loop.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], zkcliVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	servers, _ := opts.String("--servers")
	timeoutMsStr, _ := opts.String("--timeout")
	timeoutMs, err := strconv.Atoi(timeoutMsStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --timeout: %v\n", err)
		os.Exit(1)
	}
	chroot, _ := opts.String("--chroot")
	digest, _ := opts.Bool("--digest")

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientOpts := []zk.Option{zk.WithLogger(log)}
	if chroot != "" {
		clientOpts = append(clientOpts, zk.WithChroot(chroot))
	}

	c, err := zk.Connect(ctx, servers, time.Duration(timeoutMs)*time.Millisecond, clientOpts...)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer c.Close()

	if digest {
		if err := promptDigest(c); err != nil {
			log.Fatal("digest auth", zap.Error(err))
		}
	}

	runShell(ctx, c)
}

// promptDigest reads "user:password" from the terminal with echo
// disabled and sends it as a "digest" credential.
func promptDigest(c *zk.Client) error {
	fmt.Fprint(os.Stderr, "digest (user:password): ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	return c.AddAuth("digest", passwordBytes)
}

// runShell is a minimal line-oriented REPL: one command per line,
// whitespace-separated arguments, with a command for every public path
// operation except SetACL, which has no shell command.
func runShell(ctx context.Context, c *zk.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "connected; type 'help' for commands")
	for {
		fmt.Fprint(os.Stderr, "zkcli> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := dispatch(ctx, c, fields); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, c *zk.Client, fields []string) error {
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(os.Stderr, "create|delete|exists|get|set|getacl|children|children2|sync|state|close")
		return nil
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("usage: create <path> <data>")
		}
		name, err := c.Create(ctx, args[0], []byte(args[1]), nil, proto.ModePersistent)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: delete <path>")
		}
		return c.Delete(ctx, args[0], -1)
	case "exists":
		if len(args) < 1 {
			return fmt.Errorf("usage: exists <path>")
		}
		ok, stat, err := c.Exists(ctx, args[0], nil)
		if err != nil {
			return err
		}
		fmt.Printf("exists=%v stat=%+v\n", ok, stat)
		return nil
	case "get":
		if len(args) < 1 {
			return fmt.Errorf("usage: get <path>")
		}
		data, stat, err := c.GetData(ctx, args[0], nil)
		if err != nil {
			return err
		}
		fmt.Printf("%s (version=%d)\n", string(data), stat.Version)
		return nil
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: set <path> <data>")
		}
		stat, err := c.SetData(ctx, args[0], []byte(args[1]), -1)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d\n", stat.Version)
		return nil
	case "getacl":
		if len(args) < 1 {
			return fmt.Errorf("usage: getacl <path>")
		}
		acl, _, err := c.GetACL(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", acl)
		return nil
	case "children":
		if len(args) < 1 {
			return fmt.Errorf("usage: children <path>")
		}
		children, err := c.GetChildren(ctx, args[0], nil)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(children, " "))
		return nil
	case "children2":
		if len(args) < 1 {
			return fmt.Errorf("usage: children2 <path>")
		}
		children, stat, err := c.GetChildren2(ctx, args[0], nil)
		if err != nil {
			return err
		}
		fmt.Printf("%s (cversion=%d)\n", strings.Join(children, " "), stat.Cversion)
		return nil
	case "sync":
		if len(args) < 1 {
			return fmt.Errorf("usage: sync <path>")
		}
		return c.Sync(ctx, args[0])
	case "state":
		fmt.Println(c.State())
		return nil
	case "close":
		return c.Close()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
