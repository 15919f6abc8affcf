package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"vecstore"
	"vecstore/embedding/openai"
	"vecstore/persistence/redis"
	"vecstore/storage"
	"vecstore/storage/s3"

	httpT "vecstore/transport/http"
	natsT "vecstore/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "vecstored",
		Usage: "Vector embedding store service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Usage:   "Path to the service work directory",
				Sources: cli.EnvVars("VECSTORE_PATH"),
			},
			&cli.StringFlag{
				Name:    "instance",
				Usage:   "Instance name used in NATS subjects",
				Value:   "main",
				Sources: cli.EnvVars("VECSTORE_INSTANCE"),
			},
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL",
				Value:   nats.DefaultURL,
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.BoolFlag{
				Name:  "http",
				Usage: "Enable HTTP transport",
				Value: true,
			},
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "HTTP server address",
				Value:   ":8085",
				Sources: cli.EnvVars("VECSTORE_HTTP_ADDR"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = filepath.Join(homeDir, ".vecstore")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil {
		return err
	}
	defer f.Close()

	var cfg vecstore.Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return err
	}

	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = filepath.Join(path, "backups")
	}

	embedder := openai.NewEmbedder(cfg.Embedding)

	store, err := redis.NewStore(cfg.Store)
	if err != nil {
		return err
	}

	var objects storage.ObjectStorage
	if cfg.Backup.S3.Bucket != "" {
		objects, err = s3.NewStorage(ctx, cfg.Backup.S3)
		if err != nil {
			return err
		}
	}

	svc, err := vecstore.NewService(ctx, cfg, embedder, store, objects)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc = vecstore.LoggingMiddleware(log)(svc)
	svc = vecstore.InstrumentingMiddleware(prometheus.DefaultRegisterer)(svc)

	endpoints := vecstore.NewEndpointSet(svc)

	// Add NATS Transport
	{
		instance := cmd.String("instance")

		nc, err := nats.Connect(cmd.String("nats"),
			nats.Name("Vecstore - "+instance),
		)

		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "vecstore",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		root := srv.AddGroup("vecstore." + instance)
		natsT.AddEndpoints(root, endpoints)

		sub, err := natsT.SubscribeEnriched(nc, svc, log)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	httpEnabled := cmd.Bool("http")
	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints, svc)
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}
