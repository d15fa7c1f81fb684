package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"customs_auction/internal/notify"
	"customs_auction/internal/queue"
	"customs_auction/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the outbox relay and the notification consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()

		var sender notify.Sender = notify.NewNoopSender(a.log)
		if a.cfg.WhapiToken != "" {
			sender = notify.NewWhapiSender(a.cfg.WhapiBaseURL, a.cfg.WhapiToken)
		} else {
			a.log.Warn("WHAPI_TOKEN not set, notifications are only logged")
		}
		notifier := notify.NewNotifier(notify.NewProfileDirectory(a.db), sender, a.log,
			notify.WithMoney(notify.Money{Symbol: a.cfg.CurrencySymbol, MinorUnits: a.cfg.CurrencyMinorUnits}))

		if a.cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := gin.New()
		router.Setup(engine, router.Deps{
			Service:  a.svc,
			Redis:    a.rdb,
			Events:   a.events,
			Jobs:     a.runner,
			Notifier: notifier,
			Config:   a.cfg,
			Log:      a.log,
		})
		srv := &http.Server{
			Addr:              a.cfg.HTTPAddr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.log.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if serveWorkers {
			producer := queue.NewProducer(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
			defer producer.Close()
			relay := queue.NewRelay(a.rdb, producer, a.log,
				a.cfg.BidEventStream, a.cfg.BidEventGroup, a.cfg.BidEventConsumer)

			handler := queue.NewNotificationHandler(a.rdb, notifier, a.log)
			consumer := queue.NewConsumer(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.cfg.KafkaGroupID, handler, a.log)
			defer consumer.Close()

			g.Go(func() error { return relay.Run(gctx) })
			g.Go(func() error { return consumer.Run(gctx) })
		}

		err = g.Wait()
		a.log.Info("shutdown complete")
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", true, "also run the outbox relay and the notification consumer")
	rootCmd.AddCommand(serveCmd)
}
