package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sambot/sambot-go/internal/cache"
	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/sambot/sambot-go/internal/render"
	"github.com/sambot/sambot-go/internal/service"
	"github.com/sambot/sambot-go/pkg/logger"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	kbID       string
	logLevel   string
}

// app 一次终端运行即一次页面加载
type app struct {
	cfg       *config.Config
	backend   *client.BackendClient
	knowledge *service.KnowledgeService
	chat      *service.ChatService
	docs      *service.DocumentService
	session   *model.WidgetSession
	scanner   *bufio.Scanner
	logger    *zap.Logger

	bar *progressbar.ProgressBar
}

func main() {
	opts := parseFlags()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.kbID, "kb", "", "Knowledge base id; empty for a temporary session")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()
	return opts
}

func run(opts options) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid config: %v", errs[0])
	}

	zapLogger, err := logger.NewLogger(opts.logLevel)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	a := &app{
		cfg:     cfg,
		backend: client.NewBackendClient(cfg.Backend, zapLogger),
		scanner: bufio.NewScanner(os.Stdin),
		logger:  zapLogger,
	}
	a.knowledge = service.NewKnowledgeService(a.backend, cache.NewMemoryStore(cfg.Cache.TTL), cfg.Cache.TTL, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.open(ctx, opts.kbID); err != nil {
		return err
	}
	// 无论怎样退出，清理通知只发一次
	defer a.close()

	a.loop(ctx)
	return nil
}

// open 按范围创建控制器
func (a *app) open(ctx context.Context, kbID string) error {
	if kbID == "" {
		sessionID := model.NewSessionID()
		a.session = model.NewWidgetSession(sessionID, nil, "local")
		scope := model.SessionScope(sessionID)
		a.chat = service.NewChatService(a.backend, nil, service.ChatOptions{
			Scope:     scope,
			EnableRAG: a.cfg.Chat.RAGEnabled(),
			Greeting:  a.cfg.Chat.Greeting,
		}, a.logger)
		a.docs = service.NewDocumentService(scope, a.backend, a.cfg.Upload, a.onStatus, a.logger)

		color.Cyan("%s · temporary session %s", a.cfg.Chat.AssistantName, sessionID)
	} else {
		kb, err := a.knowledge.Get(ctx, kbID)
		if err != nil {
			return fmt.Errorf("open knowledge base %s: %w", kbID, err)
		}
		scope := model.KnowledgeBaseScope(kb.ID)
		a.chat = service.NewChatService(a.backend, service.NewHistoryService(a.backend, a.logger), service.ChatOptions{
			Scope:             scope,
			EnableRAG:         a.cfg.Chat.RAGEnabled(),
			KnowledgeBaseName: kb.Name,
		}, a.logger)
		if err := a.chat.LoadHistory(ctx); err != nil {
			return fmt.Errorf("load chat history: %w", err)
		}
		a.docs = service.NewDocumentService(scope, a.backend, a.cfg.Upload, a.onStatus, a.logger)

		color.Cyan("%s · knowledge base %q (%d documents)", a.cfg.Chat.AssistantName, kb.Name, kb.Documents)
	}

	for _, msg := range a.chat.Messages() {
		printMessage(msg)
	}
	color.HiBlack("Type /help for commands, 'exit' to quit.")
	return nil
}

// close 会话范围下通知后端清理临时文档
func (a *app) close() {
	a.docs.Close()
	if a.session == nil {
		return
	}
	a.session.Close(func() {
		service.SendCleanupBeacon(context.Background(), a.backend, a.session.ID(), a.logger)
	})
}

func (a *app) loop(ctx context.Context) {
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for a.scanner.Scan() {
			lines <- a.scanner.Text()
		}
	}()

	for {
		userPrompt("\nYou: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case strings.EqualFold(line, "exit"):
			return
		case strings.HasPrefix(line, "/"):
			a.command(ctx, line, lines)
		default:
			a.send(ctx, line)
		}
	}
}

func (a *app) send(ctx context.Context, text string) {
	spinner := getSpinner("🤖 Generating response...")
	reply, err := a.chat.Send(ctx, text)
	spinner.Finish()
	fmt.Print("\r")

	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return
	case err != nil:
		color.Red("%v", err)
		return
	}
	printMessage(*reply)
}

func printMessage(msg model.Message) {
	if msg.IsUser() {
		color.New(color.FgGreen).Printf("You: %s\n", msg.Text)
		return
	}
	color.New(color.FgCyan).Printf("Assistant: %s\n", render.Plain(msg))
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
