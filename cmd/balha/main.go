package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AbduElrahman2001/BALHA/cmd/balha/command"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := &command.Env{Logger: log.New(), Out: os.Stdout}
	root := command.NewRoot(ctx, env)

	if err := root.Execute(); err != nil {
		env.Logger.WithContext(ctx).Fatalf("failed to execute root command: \n%v", err)
	}
}
