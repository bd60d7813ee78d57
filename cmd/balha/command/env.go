package command

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/AbduElrahman2001/BALHA/internal/app"
	"github.com/AbduElrahman2001/BALHA/internal/config"
	"github.com/AbduElrahman2001/BALHA/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errLoginRequired = errors.New("administrator login required, run `balha login`")

// Env is shared by every command. Config is loaded lazily because the
// --config flag is only parsed once a command runs.
type Env struct {
	ConfigPath string
	Logger     *logrus.Logger
	Out        io.Writer

	cfg *config.Config
}

func (e *Env) Config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.ConfigPath)
	if err != nil {
		return nil, err
	}
	e.Logger = cfg.NewLogger()
	e.cfg = cfg
	return cfg, nil
}

func (e *Env) Open(ctx context.Context) (*app.App, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(ctx, cfg, e.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "open device store")
	}
	return a, nil
}

// OpenAdmin opens the app and checks for a live admin session.
func (e *Env) OpenAdmin(ctx context.Context) (*app.App, models.Session, error) {
	a, err := e.Open(ctx)
	if err != nil {
		return nil, models.Session{}, err
	}
	sess, ok, err := a.Gate.Current(ctx)
	if err != nil {
		a.Close()
		return nil, models.Session{}, err
	}
	if !ok {
		a.Close()
		return nil, models.Session{}, errLoginRequired
	}
	return a, sess, nil
}

func (e *Env) printTurn(turn models.Turn) {
	fmt.Fprintf(e.Out, "turn #%d  %s  %s\n", turn.TurnNumber, turn.CustomerName, models.StatusLabel(turn.Status))
	fmt.Fprintf(e.Out, "id: %d\nmobile: %s\nservice: %s\nstatus: %s\ncreated: %s\n",
		turn.ID, turn.MobileNumber, models.ServiceLabel(turn.ServiceType), turn.Status,
		turn.CreatedAt.Local().Format("2006-01-02 15:04"))
}

func (e *Env) printTurns(turns []models.Turn) {
	w := tabwriter.NewWriter(e.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tID\tNAME\tMOBILE\tSERVICE\tSTATUS\tCREATED")
	for _, turn := range turns {
		number := "-"
		if turn.IsWaiting() {
			number = strconv.Itoa(turn.TurnNumber)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			number, turn.ID, turn.CustomerName, turn.MobileNumber,
			models.ServiceLabel(turn.ServiceType), turn.Status,
			turn.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func parseTurnID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid turn id %q", raw)
	}
	return id, nil
}
