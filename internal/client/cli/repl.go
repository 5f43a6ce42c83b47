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
type execIface interface {
	isLoggedIn() bool
	Submit(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Tree(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Draft(ctx context.Context, args []string) error
	Photo(ctx context.Context, args []string) error
}

// runREPL reads commands line by line from reader and dispatches them to a.
// It shares reader with the command prompts, so a command that asks for
// input consumes the lines that follow it.
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Kiosk:
//	  - help                     show available commands
//	  - submit [email] [folder]  take a photo and upload it
//	  - history [n]              submissions accepted on this kiosk
//	  - login                    operator login
//	  - exit | quit              leave the program
//
//	Operator (after login), additionally:
//	  - (l)ist [refresh]         list submissions
//	  - tree                     submissions grouped by folder number
//	  - delete [id|#]            delete a submission
//	  - draft [id|#]             generate a notification email
//	  - photo [id|#] [file]      save a submission's photo
//	  - logout
//
// A command error is printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("pd %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cerr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: submit, history, (l)ist, tree, delete, draft, photo, logout, exit")
			} else {
				printlnFn("Available commands: submit, history, login, exit")
			}

		case "submit":
			cerr = a.Submit(ctx, args)

		case "history":
			cerr = a.History(ctx, args)

		case "login":
			cerr = a.Login(ctx)

		case "logout":
			cerr = a.Logout(ctx)

		case "l", "list":
			cerr = a.List(ctx, args)

		case "tree":
			cerr = a.Tree(ctx)

		case "delete":
			cerr = a.Delete(ctx, args)

		case "draft":
			cerr = a.Draft(ctx, args)

		case "photo":
			cerr = a.Photo(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cerr != nil {
			if errors.Is(cerr, context.Canceled) {
				return
			}
			printlnFn("Error:", cerr)
		}
	}
}
