package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
// Commands receive the rest of the input line after the command word.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context) error

	Create(ctx context.Context, args string) error
	Update(ctx context.Context, args string) error
	Delete(ctx context.Context, args string) error
	Get(ctx context.Context, args string) error

	Queue(ctx context.Context) error
	Failed(ctx context.Context) error
	Discard(ctx context.Context, args string) error
	Resubmit(ctx context.Context, args string) error
	Sync(ctx context.Context) error
	Purge(ctx context.Context) error

	Status(ctx context.Context) error
	DarkMode(ctx context.Context, args string) error
	Module(ctx context.Context, args string) error
}

// runREPL starts a simple read–eval–print loop for the zelebiz CLI.
//
// It reads a line from reader, takes the first word as the command and hands
// the rest of the line to the matching method on a. The loop exits on EOF or
// when the user types "exit" or "quit".
//
// Commands
//
//	Always:
//	  - help, status, darkmode [on|off], module <id>
//	  - register, login, exit | quit
//
//	Logged in:
//	  - create <entity> [id] [json]  queue a new entity
//	  - update <entity> <id> [json]  queue an update
//	  - delete <entity> <id>         queue a delete
//	  - get <entity> <id>            read through the cache
//	  - queue, failed                list pending / rejected records
//	  - discard <record-id>          drop a rejected record
//	  - resubmit <record-id> [json]  retry a rejected record
//	  - sync, purge, passwd, logout
//
// Errors returned by handlers are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("zb %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}

		cmd, args, _ := strings.Cut(strings.TrimSpace(line), " ")
		args = strings.TrimSpace(args)
		if cmd == "" {
			continue
		}

		if requiresLogin(cmd) && !a.isLoggedIn() {
			printlnFn("Please login first")
			continue
		}

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: create, update, delete, get, queue, failed, discard, resubmit, sync, purge, status, darkmode, module, passwd, logout, exit")
			} else {
				printlnFn("Available commands: register, login, status, darkmode, module, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "passwd":
			cmdErr = a.ChangePassword(ctx)

		case "create":
			cmdErr = a.Create(ctx, args)
		case "update":
			cmdErr = a.Update(ctx, args)
		case "delete":
			cmdErr = a.Delete(ctx, args)
		case "get":
			cmdErr = a.Get(ctx, args)

		case "queue":
			cmdErr = a.Queue(ctx)
		case "failed":
			cmdErr = a.Failed(ctx)
		case "discard":
			cmdErr = a.Discard(ctx, args)
		case "resubmit":
			cmdErr = a.Resubmit(ctx, args)
		case "sync":
			cmdErr = a.Sync(ctx)
		case "purge":
			cmdErr = a.Purge(ctx)

		case "status":
			cmdErr = a.Status(ctx)
		case "darkmode":
			cmdErr = a.DarkMode(ctx, args)
		case "module":
			cmdErr = a.Module(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}

func requiresLogin(cmd string) bool {
	switch cmd {
	case "create", "update", "delete", "get", "queue", "failed",
		"discard", "resubmit", "sync", "purge", "passwd", "logout":
		return true
	}
	return false
}

// splitArgs takes up to n leading words from args and returns them with the
// untouched remainder, which may contain spaces (a JSON payload).
func splitArgs(args string, n int) ([]string, string) {
	words := make([]string, 0, n)
	rest := strings.TrimSpace(args)
	for len(words) < n && rest != "" && !strings.HasPrefix(rest, "{") && !strings.HasPrefix(rest, "[") {
		var w string
		w, rest, _ = strings.Cut(rest, " ")
		words = append(words, w)
		rest = strings.TrimSpace(rest)
	}
	return words, rest
}
