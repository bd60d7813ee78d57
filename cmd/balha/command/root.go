package command

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRoot wires every subcommand under one root sharing env.
func NewRoot(ctx context.Context, env *Env) *cobra.Command {
	const description = "Walk-in turn queue for a small service shop"
	root := &cobra.Command{Use: "balha", Short: description, SilenceUsage: true}
	root.PersistentFlags().StringVar(&env.ConfigPath, "config", "balha.yaml", "path to the YAML config file")

	root.AddCommand(
		Serve{Env: env}.Command(ctx),
		Take{Env: env}.Command(ctx),
		Status{Env: env}.Command(ctx),
		Cancel{Env: env}.Command(ctx),
		Queue{Env: env}.Command(ctx),
		History{Env: env}.Command(ctx),
		Complete{Env: env}.Command(ctx),
		Renumber{Env: env}.Command(ctx),
		Login{Env: env}.Command(ctx),
		Logout{Env: env}.Command(ctx),
		Notify{Env: env}.Command(ctx),
	)
	return root
}
