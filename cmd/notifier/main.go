// Command notifier consumes reservation events from RabbitMQ and appends
// one line per event to logs/notifications.log.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/config"
	"github.com/gareci/bus-reservation/internal/queue"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadNotifier()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}

	if err := os.MkdirAll(cfg.RabbitMQ.NotifyLogDir, 0o755); err != nil {
		log.Fatalf("create log dir: %v", err)
	}
	path := filepath.Join(cfg.RabbitMQ.NotifyLogDir, "notifications.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{"queue": queue.QueueName, "file": path}).Info("notifier started")
	if err := queue.NewConsumer(cfg.RabbitMQ.URL, f, log).Run(ctx); err != nil {
		log.WithError(err).Fatal("notifier stopped")
	}
	log.Info("notifier stopped")
}
