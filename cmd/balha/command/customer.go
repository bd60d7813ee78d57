package command

import (
	"context"
	"fmt"

	"github.com/AbduElrahman2001/BALHA/internal/queue"
	"github.com/AbduElrahman2001/BALHA/internal/session"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type Take struct {
	Env *Env
}

func (cmd Take) Command(ctx context.Context) *cobra.Command {
	var input queue.RegisterInput
	c := &cobra.Command{
		Use:   "take",
		Short: "take a turn for this device",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := cmd.Env.Open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			turn, err := a.Customer.Take(ctx, input)
			if errors.Is(err, session.ErrTurnInProgress) {
				cmd.Env.printTurn(turn)
				return errors.New("this device already holds a waiting turn")
			}
			if err != nil {
				return err
			}
			cmd.Env.printTurn(turn)
			return nil
		},
	}
	c.Flags().StringVar(&input.CustomerName, "name", "", "customer name")
	c.Flags().StringVar(&input.MobileNumber, "mobile", "", "mobile number")
	c.Flags().StringVar(&input.ServiceType, "service", "haircut", "service code")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("mobile")
	return c
}

type Status struct {
	Env *Env
}

func (cmd Status) Command(ctx context.Context) *cobra.Command {
	var mobile string
	c := &cobra.Command{
		Use:   "status [turn-id]",
		Short: "show this device's turn or a turn by id; with --mobile, move that turn to this device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if mobile != "" && len(args) == 0 {
				return errors.New("--mobile needs the turn id as well")
			}
			a, err := cmd.Env.Open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				id, err := parseTurnID(args[0])
				if err != nil {
					return err
				}
				if mobile != "" {
					turn, found, err := a.Customer.RestoreByMobile(ctx, mobile, id)
					if err != nil {
						return err
					}
					if !found {
						fmt.Fprintln(cmd.Env.Out, "no waiting turn", id, "for", mobile)
						return nil
					}
					cmd.Env.printTurn(turn)
					return nil
				}
				turn, err := a.Manager.Status(id)
				if err != nil {
					return err
				}
				cmd.Env.printTurn(turn)
				return nil
			}

			turn, err := a.Customer.Check(ctx)
			if errors.Is(err, session.ErrNoTurn) || errors.Is(err, queue.ErrNotFound) {
				fmt.Fprintln(cmd.Env.Out, "no turn on this device")
				return nil
			}
			if err != nil {
				return err
			}
			cmd.Env.printTurn(turn)
			return nil
		},
	}
	c.Flags().StringVar(&mobile, "mobile", "", "with a turn id, track that waiting turn on this device")
	return c
}

type Cancel struct {
	Env *Env
}

func (cmd Cancel) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "cancel this device's turn",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := cmd.Env.Open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			turn, err := a.Customer.Cancel(ctx)
			if err != nil {
				return err
			}
			cmd.Env.printTurn(turn)
			return nil
		},
	}
}
