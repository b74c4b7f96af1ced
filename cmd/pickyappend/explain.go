package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
)

// explainCommand prints how a query is executed.
type explainCommand struct {
	g       *globalFlags
	query   *string
	analyze *bool
}

func (cmd *explainCommand) run(c *kingpin.ParseContext) error {
	ctx := context.Background()
	e := cmd.g.newEngine(ctx)

	plan, err := e.Build(readQuery(*cmd.query))
	if err != nil {
		exitWithErr(fmt.Errorf("failed to plan query: %w", err))
	}

	out, err := e.Explain(ctx, plan, *cmd.analyze)
	if err != nil {
		exitWithErr(fmt.Errorf("failed to explain query: %w", err))
	}

	title := "Plan:"
	if *cmd.analyze {
		title = "Plan (analyzed):"
	}
	color.New(color.Bold).Println(title)
	fmt.Print(out)
	return nil
}

func addExplainCommand(app *kingpin.Application, g *globalFlags) {
	cmd := &explainCommand{g: g}
	explain := app.Command("explain", "Print the execution plan of a query.").Action(cmd.run)
	cmd.query = explain.Arg("query", "YAML file describing the query.").Required().ExistingFile()
	cmd.analyze = explain.Flag("analyze", "Execute the query and include runtime statistics.").Bool()
}

// relationsCommand lists the relations of the fixture.
type relationsCommand struct {
	g *globalFlags
}

func (cmd *relationsCommand) run(c *kingpin.ParseContext) error {
	e := cmd.g.newEngine(context.Background())
	for _, name := range e.Relations() {
		fmt.Println(name)
	}
	return nil
}

func addRelationsCommand(app *kingpin.Application, g *globalFlags) {
	cmd := &relationsCommand{g: g}
	app.Command("relations", "List the relations of the fixture.").Action(cmd.run)
}
