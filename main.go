package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/config"
	"ragchat/internal/embedding"
	"ragchat/internal/logger"
	"ragchat/internal/redis"
	"ragchat/internal/storage"
	"ragchat/internal/store"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Retrieval-augmented chatbot API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("RAGCHAT_CONFIG"), "optional config file (yaml, json or toml)")
	root.AddCommand(newServeCommand(&cfgPath), newIngestCommand(&cfgPath))
	return root
}

// bootstrap loads configuration and the logger shared by every command.
func bootstrap(cfgPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.BasicConfig.LogFile, cfg.BasicConfig.LogJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	driver := cfg.BasicConfig.DBDriver
	log.Info("opening thread store", zap.String("driver", driver))
	if driver == config.DriverMongo {
		client, db, err := storage.OpenMongo(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open mongodb: %w", err)
		}
		if err := storage.MigrateMongo(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("migrate mongodb: %w", err)
		}
		return store.New(store.NewMongoDriver(client, db)), nil
	}
	db, err := storage.Open(driver, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store.New(store.NewSQLDriver(db, driver)), nil
}

// openRedis returns nil when redis is not configured.
func openRedis(cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	if !redis.Enabled(cfg) {
		log.Info("redis disabled, using in-process locks and no token cache")
		return nil, nil
	}
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

func openVectorStore(cfg *config.Config) (vectorstore.Store, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:        vs.URL,
			APIKey:     vs.APIKey,
			Collection: vs.Collection,
			Timeout:    vs.Timeout,
		}), nil
	case "memory":
		mem, err := memory.NewStorage(vs.Path, vs.Collection)
		if err != nil {
			return nil, fmt.Errorf("open memory vector store: %w", err)
		}
		return mem, nil
	default:
		return nil, fmt.Errorf("unsupported VECTOR_STORE: %s", vs.Type)
	}
}

func newEmbedder(cfg *config.Config) embedding.Embedder {
	return embedding.NewOpenAI(cfg.Embedding)
}
