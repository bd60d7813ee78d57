package command

import (
	"context"
	"fmt"

	"github.com/AbduElrahman2001/BALHA/internal/notify"

	"github.com/spf13/cobra"
)

type Login struct {
	Env *Env
}

func (cmd Login) Command(ctx context.Context) *cobra.Command {
	var username, password string
	c := &cobra.Command{
		Use:   "login",
		Short: "log in as the administrator",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := cmd.Env.Open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.Gate.Login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Env.Out, "logged in as %s until %s\n", sess.Username, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	c.Flags().StringVar(&username, "username", "admin", "administrator username")
	c.Flags().StringVar(&password, "password", "", "administrator password")
	_ = c.MarkFlagRequired("password")
	return c
}

type Logout struct {
	Env *Env
}

func (cmd Logout) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "end the administrator session",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := cmd.Env.Open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Gate.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.Env.Out, "logged out")
			return nil
		},
	}
}

type Queue struct {
	Env *Env
}

func (cmd Queue) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "list waiting turns",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, _, err := cmd.Env.OpenAdmin(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			turns := a.Manager.ListWaiting()
			if len(turns) == 0 {
				fmt.Fprintln(cmd.Env.Out, "the queue is empty")
				return nil
			}
			cmd.Env.printTurns(turns)
			return nil
		},
	}
}

type History struct {
	Env *Env
}

func (cmd History) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "list every turn with totals",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, _, err := cmd.Env.OpenAdmin(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cmd.Env.printTurns(a.Manager.History())
			stats := a.Manager.Stats()
			fmt.Fprintf(cmd.Env.Out, "\ntotal %d  waiting %d  completed %d  cancelled %d\n",
				stats.Total, stats.Waiting, stats.Completed, stats.Cancelled)
			return nil
		},
	}
}

type Complete struct {
	Env *Env
}

func (cmd Complete) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <turn-id>",
		Short: "mark a turn as served",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseTurnID(args[0])
			if err != nil {
				return err
			}
			a, _, err := cmd.Env.OpenAdmin(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			turn, err := a.Manager.Complete(ctx, id)
			if err != nil {
				return err
			}
			cmd.Env.printTurn(turn)
			return nil
		},
	}
}

type Renumber struct {
	Env *Env
}

func (cmd Renumber) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "renumber",
		Short: "compact waiting turn numbers to 1..N",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, _, err := cmd.Env.OpenAdmin(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Manager.Renumber(ctx); err != nil {
				return err
			}
			cmd.Env.printTurns(a.Manager.ListWaiting())
			return nil
		},
	}
}

type Notify struct {
	Env *Env
}

func (cmd Notify) Command(ctx context.Context) *cobra.Command {
	var sender, message string
	c := &cobra.Command{
		Use:   "notify <turn-id>",
		Short: "send a simulated SMS to a waiting customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseTurnID(args[0])
			if err != nil {
				return err
			}
			a, _, err := cmd.Env.OpenAdmin(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sent, err := a.Notifier.Send(ctx, notify.Request{TurnID: id, SenderPhone: sender, Message: message})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Env.Out, "%s to %s via %s after %d attempt(s): %s\n", sent.Status, sent.Recipient, sent.Provider, sent.Attempts, sent.Body)
			return nil
		},
	}
	c.Flags().StringVar(&sender, "sender", "", "administrator phone number")
	c.Flags().StringVar(&message, "message", "", "message template, defaults to the standard call-in text")
	_ = c.MarkFlagRequired("sender")
	return c
}
