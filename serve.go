package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/api"
	"ragchat/internal/auth"
	"ragchat/internal/service/account"
	"ragchat/internal/service/ai"
	"ragchat/internal/service/assistant"
	"ragchat/internal/service/rag"
	"ragchat/internal/worker"
	"ragchat/internal/workflow"
)

func newServeCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfgPath)
		},
	}
}

func runServe(ctx context.Context, cfgPath string) error {
	cfg, log, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	rdb, err := openRedis(cfg, log)
	if err != nil {
		return err
	}
	var locker worker.Locker = worker.NewLocalLocker()
	if rdb != nil {
		defer rdb.Close()
		locker = worker.NewRedisLocker(rdb, log)
	}

	vectors, err := openVectorStore(cfg)
	if err != nil {
		return err
	}
	chatModel, err := ai.NewChatModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}

	flow := &workflow.Workflow{
		Retriever:   rag.NewRetriever(newEmbedder(cfg), vectors, cfg.VectorStore.TopK, log.Named("retriever")),
		Answerer:    assistant.NewAnswerer(chatModel, log.Named("answer")),
		Headliner:   assistant.NewHeadliner(chatModel, log.Named("headline")),
		Checkpoints: st,
		Locker:      locker,
		Logger:      log.Named("workflow"),
	}
	authService := auth.NewService(st, rdb, cfg.Security.SecretKey, cfg.Security.SessionTTL)
	handlers := api.NewHandler(
		account.NewService(st, cfg.Security.PasswordSalt),
		st,
		flow,
		authService,
		log.Named("api"),
		api.Options{CSRF: cfg.Security.CSRFEnabled, CORSOrigins: cfg.BasicConfig.CORSOrigins},
	)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	provider, _ := cfg.GenerationProvider()
	log.Info("server starting",
		zap.String("addr", cfg.BasicConfig.ServerAddress),
		zap.String("provider", provider),
		zap.String("vector_store", cfg.VectorStore.Type),
	)
	if err := router.Run(cfg.BasicConfig.ServerAddress); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
