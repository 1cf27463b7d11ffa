package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moontrade/backbone/config"
	"github.com/moontrade/backbone/coordinator"
	"github.com/moontrade/backbone/logger"
	"github.com/moontrade/backbone/message"
	"github.com/moontrade/backbone/producer"
)

// ShutdownTimeout bounds draining the work queue and flushing the batcher.
var ShutdownTimeout = 10 * time.Second

// Main entrypoint for a coordinator process. This should be called once,
// as the last call in the Go main() function. It returns when the process
// receives SIGINT or SIGTERM and has shut down, or when a consumer failed.
func Main(conf Config) error {
	confInit(&conf)
	s, err := settingsInit(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}
	log := logInit(conf, s)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := conf.Executor
	if exec == nil {
		exec = logExecutor{log: log.With("component", "executor")}
	}
	if err := Run(ctx, s, exec, log); err != nil {
		log.Error(err, "exiting")
		return err
	}
	return nil
}

// Run wires the transport, batcher and coordinator described by s and runs
// them until ctx is done or a consumer stops on a transport failure. Shutdown
// stops the consumers, drains the work queue, flushes the batcher and closes
// the transport, in that order.
func Run(ctx context.Context, s config.Config, exec coordinator.Executor, log *logger.Logger) error {
	log = logger.OrNop(log)
	tlscfg, err := tlsInit(s)
	if err != nil {
		return err
	}
	tr := transportInit(s, tlscfg)
	defer tr.Close()

	codec, err := message.ParseCodec(s.Producer.Codec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	pub := producer.NewBatcher(tr, producer.Config{
		MaxBatchSize:  s.Producer.MaxBatchSize,
		MaxLinger:     s.Producer.MaxLinger,
		MaxLength:     s.Producer.MaxLength,
		RetryAttempts: s.Producer.RetryAttempts,
		RetryBackoff:  s.Producer.RetryBackoff,
	}, log.With("component", "producer"))

	co, err := coordinator.New(tr, pub, exec, coordinator.Config{
		Streams:          s.Coordinator.Streams,
		Group:            s.Consumer.Group,
		Consumer:         s.Consumer.Name,
		Block:            s.Consumer.Block,
		Count:            s.Consumer.Count,
		ClaimMinIdle:     s.Consumer.ClaimMinIdle,
		ClaimInterval:    s.Consumer.ClaimInterval,
		ActiveTTL:        s.Coordinator.ActiveTTL,
		SweepInterval:    s.Coordinator.SweepInterval,
		DedupeSize:       s.Coordinator.DedupeSize,
		QueueSize:        s.Coordinator.QueueSize,
		HighWaterMark:    s.Backpressure.HighWaterMark,
		LowWaterMark:     s.Backpressure.LowWaterMark,
		LatencyCapacity:  s.Latency.Capacity,
		PairsCapacity:    s.Pairs.Capacity,
		RepublishStream:  s.Coordinator.RepublishStream,
		QuarantineStream: s.Coordinator.QuarantineStream,
		Encode: message.Options{
			Codec:         codec,
			CompressAbove: s.Producer.CompressAbove,
		},
	}, log)
	if err != nil {
		pub.Close(context.Background())
		return err
	}

	// the consumers outlive ctx so that shutdown can drain them
	if err := co.Start(context.WithoutCancel(ctx)); err != nil {
		pub.Close(context.Background())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if s.Coordinator.StatsInterval > 0 {
		go runTicker(runCtx, s.Coordinator.StatsInterval, co, log)
	}
	werr := co.Wait(runCtx)
	cancel()
	if errors.Is(werr, context.Canceled) || errors.Is(werr, context.DeadlineExceeded) {
		werr = nil
	}
	if werr != nil {
		log.Error(werr, "consumer failed, shutting down")
	} else {
		log.Info("shutting down")
	}

	sctx, scancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer scancel()
	stopErr := co.Stop(sctx)
	closeErr := pub.Close(sctx)
	// a failed consumer reports its error through Stop as well
	return errors.Join(stopErr, closeErr)
}
