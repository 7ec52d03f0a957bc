// brewsim pretends to be a dispensing device: it sends signed telemetry and product
// counts on an interval and executes (acknowledges) whatever commands it polls.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brewlink/internal/client"
	"brewlink/internal/logs"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	url := pflag.String("url", "http://127.0.0.1:8080", "gateway base URL")
	key := pflag.String("device", "", "device key (x-device-id)")
	secret := pflag.String("secret", "", "device secret")
	interval := pflag.Duration("interval", 30*time.Second, "report interval")
	fw := pflag.String("fw", "sim-1.0.0", "firmware version to report")
	once := pflag.Bool("once", false, "send one round and exit")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	logs.Init(logs.Options{Level: *level})
	if *key == "" || *secret == "" {
		logs.Logger.Fatal("--device and --secret are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*url, *key, *secret)
	log := logs.Logger.WithField("device", *key)

	tick := time.NewTicker(*interval)
	defer tick.Stop()
	for {
		round(ctx, c, log, int64(interval.Seconds()), *fw)
		if *once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func round(ctx context.Context, c *client.Client, log *logrus.Entry, intervalS int64, fw string) {
	counts := client.Counts{
		Idle:       int64(rand.Intn(5)),
		Coffee:     int64(rand.Intn(3)),
		Cappuccino: int64(rand.Intn(2)),
		Powders:    int64(rand.Intn(2)),
	}

	bucket, err := c.SendTelemetry(ctx, client.Report{IntervalS: intervalS, Counts: counts, FWVersion: fw})
	if err != nil {
		log.Warnf("telemetry: %v", err)
	} else {
		log.WithField("ts_bucket", bucket).Info("telemetry sent")
	}

	res, err := c.SendProducts(ctx, counts)
	if err != nil {
		log.Warnf("products: %v", err)
	} else {
		log.WithFields(logrus.Fields{"applied": res.Applied, "warnings": res.Warnings}).Info("products sent")
	}

	for {
		cmd, err := c.Poll(ctx)
		if err != nil {
			log.Warnf("poll: %v", err)
			return
		}
		if cmd == nil {
			return
		}
		log.WithFields(logrus.Fields{"command_id": cmd.ID, "command": cmd.Command}).Info("executing command")
		if err := c.Ack(ctx, cmd.ID, "done", "simulated"); err != nil {
			log.Warnf("ack: %v", err)
			return
		}
	}
}
