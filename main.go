package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/askscout/agent/internal/agent/graph"
	"github.com/askscout/agent/internal/agent/model"
	"github.com/askscout/agent/internal/agent/repo"
	"github.com/askscout/agent/internal/core"
	logx "github.com/askscout/agent/pkg/logger"
	pkgredis "github.com/askscout/agent/pkg/redis"
)

// AppConfig defines all configurable parameters for the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure. Redis is optional: without REDIS_URL the agent keeps
	// thread checkpoints in memory for the lifetime of the process.
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Model        model.ChatModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	store, cleanup, err := newCheckpointStore(envCfg)
	if err != nil {
		log.Fatalf("Failed to initialise checkpoint store: %v", err)
	}
	defer cleanup()

	runner, err := graph.BuildChatGraph(ctx, graph.Config{
		APIKey:       envCfg.APIKey,
		BaseURL:      envCfg.BaseURL,
		Model:        envCfg.Model,
		Prompt:       envCfg.Prompt,
		Conversation: envCfg.Conversation,
		Store:        store,
	})
	if err != nil {
		log.Fatalf("Failed to build chat graph: %v", err)
	}

	threadID := uuid.NewString()
	fmt.Printf("Hi, I'm %s. I can search the web, Wikipedia, and arXiv.\n", envCfg.Prompt.AssistantName)
	fmt.Println("Commands: /reset (clear history), /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/reset":
			if err := runner.Reset(ctx, threadID); err != nil {
				logx.Error().Err(err).Msg("failed to clear thread history")
				continue
			}
			threadID = uuid.NewString()
			fmt.Println("History cleared! How can I help?")
			continue
		}

		answer, err := runner.Invoke(ctx, model.QueryInput{
			ThreadID: threadID,
			Query:    line,
		})
		if err != nil {
			// Fatal run errors never touch the checkpoint, so the user can
			// simply retry. Keep the error out of the conversation itself.
			fmt.Printf("An error occurred: %v\n", err)
			continue
		}
		fmt.Println(answer)
	}
}

func newCheckpointStore(cfg AppConfig) (model.CheckpointStore, func(), error) {
	if !cfg.Redis.Enabled() {
		logx.Info().Msg("REDIS_URL not set; using in-memory checkpoints")
		return repo.NewMemoryCheckpointStore(), func() {}, nil
	}

	rdb, err := cfg.Redis.New()
	if err != nil {
		return nil, nil, err
	}

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
	}

	logx.Info().Dur("ttl", ttl).Msg("using Redis checkpoints")
	return repo.NewRedisCheckpointStore(rdb, ttl), func() { rdb.Close() }, nil
}
