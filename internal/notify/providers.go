package notify

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Provider hands a rendered message to a transport. None of the built-in
// providers deliver anything.
type Provider interface {
	Name() string
	Send(ctx context.Context, message, recipient, sender string) error
}

func NewProvider(kind string, logger *logrus.Logger) Provider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch kind {
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	default:
		return logProvider{logger: logger}
	}
}

type logProvider struct {
	logger *logrus.Logger
}

func (logProvider) Name() string { return "log" }

func (p logProvider) Send(ctx context.Context, message, recipient, sender string) error {
	p.logger.WithFields(logrus.Fields{
		"recipient": recipient,
		"sender":    sender,
	}).Info("sms: " + message)
	return nil
}

type noopProvider struct{}

func (noopProvider) Name() string { return "noop" }

func (noopProvider) Send(ctx context.Context, message, recipient, sender string) error {
	return nil
}

type failProvider struct{}

func (failProvider) Name() string { return "fail" }

func (failProvider) Send(ctx context.Context, message, recipient, sender string) error {
	return errors.New("provider failure")
}
