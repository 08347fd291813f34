package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mnohosten/paygate/pkg/client"
)

const (
	version = "0.1.0"
	banner  = `
╔══════════════════════════════════════╗
║        paygate client v%s        ║
║   two-phase-commit payment gateway    ║
╚══════════════════════════════════════╝

Type 'help' for available commands
Type 'exit' or 'quit' to exit

`
)

// CLI drives the user-facing menu: transfer, balance, history, quit. A
// background Queue worker drains transfers submitted while the coordinator
// was unreachable.
type CLI struct {
	cl    *client.Client
	queue *client.Queue

	bank     string
	username string

	scanner *bufio.Scanner
}

func main() {
	host := flag.String("host", "localhost", "coordinator host")
	port := flag.Int("port", 9000, "coordinator port")
	pollInterval := flag.Duration("poll-interval", 200*time.Millisecond, "offline-queue Ping poll interval")
	flag.Parse()

	cfg := client.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cl := client.New(cfg)
	defer cl.Close()

	cli := &CLI{cl: cl, scanner: bufio.NewScanner(os.Stdin)}

	args := flag.Args()
	if len(args) >= 3 {
		if err := cli.login(args[0], args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cli.queue = client.NewQueue(cl, *pollInterval, func() {
		fmt.Println("\nsession expired; please 'login <bank> <user> <password>' again to resume the queue")
	})
	go cli.queue.Run(ctx)
	defer cli.queue.Stop()

	if err := cli.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) login(bank, username, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cl.Login(ctx, bank, username, password); err != nil {
		return err
	}
	c.bank = bank
	c.username = username
	if c.queue != nil {
		c.queue.Resume()
	}
	return nil
}

func (c *CLI) Run() error {
	fmt.Printf(banner, version)

	for {
		fmt.Print("paygate> ")
		if !c.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}

		if err := c.executeCommand(line); err != nil {
			if err.Error() == "exit" {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Printf("Error: %v\n", err)
		}
	}

	return c.scanner.Err()
}

func (c *CLI) executeCommand(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case "help", "?":
		return c.showHelp()
	case "exit", "quit":
		return fmt.Errorf("exit")
	case "login":
		if len(parts) != 4 {
			return fmt.Errorf("usage: login <bank> <user> <password>")
		}
		return c.login(parts[1], parts[2], parts[3])
	case "transfer":
		return c.transfer(parts)
	case "balance":
		return c.balance()
	case "history":
		return c.history()
	case "queue":
		fmt.Printf("%d transfer(s) waiting to drain\n", c.queue.Len())
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
	}
}

func (c *CLI) showHelp() error {
	fmt.Print(`
Commands:
  login <bank> <user> <password>   Authenticate (or re-authenticate)
  transfer <dst_bank> <dst_user> <amount>   Submit a transfer
  balance                           Show current balance
  history                           Show transaction history
  queue                             Show how many transfers are still queued
  help, ?                           Show this help message
  exit, quit                        Exit the client

`)
	return nil
}

func (c *CLI) requireLogin() error {
	if !c.cl.Authenticated() {
		return fmt.Errorf("not logged in; use 'login <bank> <user> <password>' first")
	}
	return nil
}

func (c *CLI) transfer(parts []string) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("usage: transfer <dst_bank> <dst_user> <amount>")
	}
	amount, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	entry, outcome := c.queue.Enqueue(parts[1], parts[2], amount)
	fmt.Printf("queued transfer %s\n", entry.TxID)

	select {
	case result := <-outcome:
		if result.Committed {
			fmt.Printf("transfer %s committed\n", result.TxID)
		} else {
			fmt.Printf("transfer %s aborted: %s\n", result.TxID, result.AbortReason)
		}
	case <-time.After(2 * time.Second):
		fmt.Println("transfer queued; it will complete once the coordinator is reachable")
	}
	return nil
}

func (c *CLI) balance() error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	balance, err := c.cl.Balance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("balance: %d\n", balance)
	return nil
}

func (c *CLI) history() error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	history, err := c.cl.History(ctx)
	if err != nil {
		return err
	}
	for _, record := range history {
		fmt.Println(string(record))
	}
	return nil
}
