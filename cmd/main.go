// Command mcp-runtime-demo wires up a minimal MCP server over stdio: a
// quick tool and a slow one, either of which a client can run as a task
// (tasks are enabled), so the runtime can be driven
// end-to-end from a real client without any registry or transport code
// outside this package.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/metoro-io/mcp-runtime-go/mcp"
	"github.com/metoro-io/mcp-runtime-go/task"
	"github.com/metoro-io/mcp-runtime-go/tools"
	"github.com/metoro-io/mcp-runtime-go/transport/stdio"
)

type HelloArguments struct {
	Name string `json:"name" jsonschema:"description=The name of the person to greet"`
}

type SlowJobArguments struct {
	Seconds int `json:"seconds" jsonschema:"description=How long the job should pretend to run"`
}

func main() {
	s := mcp.NewServer(
		mcp.WithName("mcp-runtime-demo"),
		mcp.WithVersion("0.1.0"),
		mcp.WithTasks(task.NewMemoryStore()),
	)

	if err := s.RegisterTool("hello", "Say hello to a person", func(args HelloArguments) (*tools.ToolResponse, error) {
		return tools.NewToolResponse(tools.NewToolTextResponseContent("Hello, " + args.Name + "!")), nil
	}); err != nil {
		panic(err)
	}

	if err := s.RegisterTool("slow_job", "Run a job that takes the given number of seconds to finish", func(args SlowJobArguments) (*tools.ToolResponse, error) {
		time.Sleep(time.Duration(args.Seconds) * time.Second)
		return tools.NewToolResponse(tools.NewToolTextResponseContent("job complete")), nil
	}); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := s.Connect(ctx, stdio.New()); err != nil {
		panic(err)
	}
	<-ctx.Done()
}
