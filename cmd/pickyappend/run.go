package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/grafana/pickyappend/pkg/engine"
)

// runCommand executes a query and prints the returned rows.
type runCommand struct {
	g     *globalFlags
	query *string
	quiet *bool
}

func (cmd *runCommand) run(c *kingpin.ParseContext) error {
	ctx := context.Background()
	e := cmd.g.newEngine(ctx)

	q := readQuery(*cmd.query)
	plan, err := e.Build(q)
	if err != nil {
		exitWithErr(fmt.Errorf("failed to plan query: %w", err))
	}

	res, err := e.Execute(ctx, plan)
	if err != nil {
		exitWithErr(fmt.Errorf("failed to execute query: %w", err))
	}

	if !*cmd.quiet {
		printRows(res)
	}
	color.New(color.Faint).Fprintf(os.Stderr, "%s rows in %s\n", humanize.Comma(int64(len(res.Rows))), res.Duration)
	return nil
}

func printRows(res engine.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	bold := color.New(color.Bold)
	bold.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func readQuery(name string) engine.Query {
	data, err := os.ReadFile(name)
	if err != nil {
		exitWithErr(err)
	}
	q, err := engine.ParseQuery(data)
	if err != nil {
		exitWithErr(err)
	}
	return q
}

func addRunCommand(app *kingpin.Application, g *globalFlags) {
	cmd := &runCommand{g: g}
	run := app.Command("run", "Execute a query and print its rows.").Action(cmd.run)
	cmd.query = run.Arg("query", "YAML file describing the query.").Required().ExistingFile()
	cmd.quiet = run.Flag("quiet", "Only print the number of returned rows.").Short('q').Bool()
}
