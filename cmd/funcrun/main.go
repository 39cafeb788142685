// Command funcrun runs Python functions on a remote code interpreter and
// manages the stored function registry.
//
// Usage:
//
//	funcrun run --code FILE [--name NAME] [--params JSON] [--dep REQ]...
//	funcrun run --stored NAME [--params JSON]
//	funcrun functions create|update|get|list|delete ...
//	funcrun tools list
//	funcrun tools call TOOL [--args JSON]
//
// Every subcommand accepts --config. Results are written to stdout as
// JSON, progress events to stderr as SSE frames, and failures to stderr
// as an error response. The exit status reflects the error type.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: funcrun <command> [flags]

commands:
  run          run inline code or a stored function
  functions    manage stored functions (create, update, get, list, delete)
  tools        list or call the registered tools
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run dispatches to a subcommand and returns the process exit status.
func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.stderr, usage)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "run":
		err = c.runCommand(ctx, args[1:])
	case "functions":
		err = c.functionsCommand(ctx, args[1:])
	case "tools":
		err = c.toolsCommand(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
	return c.finish(err)
}
