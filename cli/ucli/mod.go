// Package ucli provides a cli builder implementation based on the urfave/cli
// library.
package ucli

import (
	"fmt"
	"io"

	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/veilroll/cli"
)

// Option is the type of the options to create a builder.
type Option func(*Builder)

// WithUsage sets the description of the application.
func WithUsage(usage string) Option {
	return func(b *Builder) {
		b.usage = usage
	}
}

// WithWriter sets the output of the application, which is the standard output
// by default.
func WithWriter(w io.Writer) Option {
	return func(b *Builder) {
		b.writer = w
	}
}

// Builder implements a cli builder based on urfave/cli
//
// - implements cli.Builder
type Builder struct {
	name     string
	usage    string
	writer   io.Writer
	commands []*cmdBuilder
}

// NewBuilder returns a new initialized builder.
func NewBuilder(name string, opts ...Option) *Builder {
	b := &Builder{
		name: name,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build implements cli.Builder.
func (b *Builder) Build() cli.Application {
	app := &urfave.App{
		Name:     b.name,
		Usage:    b.usage,
		Commands: buildCommands(b.commands),
	}

	if b.writer != nil {
		app.Writer = b.writer
	}

	app.Setup()

	return app
}

// SetCommand implements cli.Builder.
func (b *Builder) SetCommand(name string) cli.CommandBuilder {
	cmd := &cmdBuilder{name: name}
	b.commands = append(b.commands, cmd)

	return cmd
}

// cmdBuilder is the struct provided to build commands.
//
// - implements cli.CommandBuilder
type cmdBuilder struct {
	name        string
	description string
	action      cli.Action
	flags       []cli.Flag
	subcommands []*cmdBuilder
}

// SetDescription implements cli.CommandBuilder.
func (b *cmdBuilder) SetDescription(value string) {
	b.description = value
}

// SetFlags implements cli.CommandBuilder.
func (b *cmdBuilder) SetFlags(flags ...cli.Flag) {
	b.flags = append(b.flags, flags...)
}

// SetAction implements cli.CommandBuilder.
func (b *cmdBuilder) SetAction(action cli.Action) {
	b.action = action
}

// SetSubCommand implements cli.CommandBuilder.
func (b *cmdBuilder) SetSubCommand(name string) cli.CommandBuilder {
	sub := &cmdBuilder{name: name}
	b.subcommands = append(b.subcommands, sub)

	return sub
}

// buildCommands recursively converts the builders to urfave commands.
func buildCommands(cmds []*cmdBuilder) []*urfave.Command {
	commands := make([]*urfave.Command, len(cmds))

	for i, cmd := range cmds {
		commands[i] = &urfave.Command{
			Name:        cmd.name,
			Usage:       cmd.description,
			Action:      makeAction(cmd.action),
			Flags:       buildFlags(cmd.flags),
			Subcommands: buildCommands(cmd.subcommands),
		}
	}

	return commands
}

// buildFlags converts the flags to their urfave form. It panics for an
// unknown kind of flag.
func buildFlags(flags []cli.Flag) []urfave.Flag {
	res := make([]urfave.Flag, len(flags))

	for i, f := range flags {
		switch e := f.(type) {
		case cli.StringFlag:
			res[i] = &urfave.StringFlag{Name: e.Name, Usage: e.Usage, Required: e.Required, Value: e.Value}
		case cli.DurationFlag:
			res[i] = &urfave.DurationFlag{Name: e.Name, Usage: e.Usage, Required: e.Required, Value: e.Value}
		case cli.IntFlag:
			res[i] = &urfave.IntFlag{Name: e.Name, Usage: e.Usage, Required: e.Required, Value: e.Value}
		case cli.BoolFlag:
			res[i] = &urfave.BoolFlag{Name: e.Name, Usage: e.Usage, Required: e.Required, Value: e.Value}
		default:
			panic(fmt.Sprintf("flag type '%T' not supported", f))
		}
	}

	return res
}

// makeAction transforms a cli.Action to its urfave form.
func makeAction(action cli.Action) urfave.ActionFunc {
	if action == nil {
		return nil
	}

	return func(ctx *urfave.Context) error {
		return action(ctx)
	}
}
