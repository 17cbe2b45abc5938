package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sambot/sambot-go/internal/middleware"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/sambot/sambot-go/internal/service"
)

const helpText = `Commands:
  /upload <path>...          upload and embed files, one after another
  /docs                      list documents
  /embed <name>              embed an uploaded document again
  /delete <name>             delete a document and its embeddings
  /download <name> [dest]    save the original file
  /kbs [search] [sort]       list knowledge bases (sort: recent, oldest, name, documents)
  /token [subject]           issue an admin token for the gateway
  exit                       quit`

func (a *app) command(ctx context.Context, line string, lines <-chan string) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	var err error
	switch name {
	case "/help":
		fmt.Println(helpText)
	case "/upload":
		err = a.upload(ctx, args)
	case "/docs":
		err = a.listDocuments(ctx)
	case "/embed":
		err = a.embedDocument(ctx, args)
	case "/delete":
		err = a.deleteDocument(ctx, args, lines)
	case "/download":
		err = a.download(ctx, args)
	case "/kbs":
		err = a.listKnowledgeBases(ctx, args)
	case "/token":
		err = a.issueToken(args)
	default:
		color.Yellow("Unknown command %s, type /help", name)
	}
	if err != nil {
		color.Red("%v", err)
	}
}

func (a *app) upload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return service.ErrNoFiles
	}

	files := make([]service.FileInput, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		path := p
		files = append(files, service.FileInput{
			Name: filepath.Base(path),
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}

	a.bar = getProgressBar(len(files), "📄 Uploading documents...")
	batch, err := a.docs.Upload(ctx, files)
	a.bar.Finish()
	a.bar = nil
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("\nUpload complete! %s.", batch.Summary())
	if batch.Failed > 0 {
		color.Yellow("%s", summary)
	} else {
		color.Green("%s", summary)
	}
	return nil
}

// onStatus 把流水线状态映射到进度条
func (a *app) onStatus(st model.EmbeddingStatus) {
	if a.bar == nil {
		return
	}
	switch st.Phase {
	case model.PhaseUploading, model.PhaseEmbedding:
		a.bar.Describe(color.BlueString("📄 %s %s", st.Message, st.Progress))
	case model.PhaseSucceeded:
		a.bar.Describe(color.GreenString("%s", st.Message))
		a.bar.Add(1)
	case model.PhaseFailed:
		a.bar.Describe(color.RedString("%s", st.Message))
		a.bar.Add(1)
	}
}

func (a *app) listDocuments(ctx context.Context) error {
	docs, err := a.docs.Refresh(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		color.HiBlack("No documents yet.")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("  %-40s %12s  %s\n", d.Name, d.Size, d.Timestamp)
	}
	return nil
}

func (a *app) embedDocument(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /embed <name>")
	}
	name := strings.Join(args, " ")

	spinner := getSpinner("📄 Embedding " + name + "...")
	result, err := a.docs.Embed(ctx, name)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}
	color.Green("Embedded successfully! Created %d chunks.", result.Chunks)
	return nil
}

func (a *app) deleteDocument(ctx context.Context, args []string, lines <-chan string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /delete <name>")
	}
	name := strings.Join(args, " ")

	confirm := service.ConfirmFunc(func(ctx context.Context, prompt string) bool {
		color.Yellow("%s", prompt)
		fmt.Print("Type 'yes' to confirm: ")
		select {
		case answer, ok := <-lines:
			return ok && strings.EqualFold(strings.TrimSpace(answer), "yes")
		case <-ctx.Done():
			return false
		}
	})

	result, err := a.docs.Delete(ctx, name, confirm)
	if err != nil {
		return err
	}
	color.Green("Deleted %s", result.Name)
	if result.EmbeddingsError != "" {
		color.Yellow("Embeddings could not be removed: %s", result.EmbeddingsError)
	}
	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /download <name> [dest]")
	}
	name := args[0]
	dest := name
	if len(args) > 1 {
		dest = args[1]
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := a.docs.Download(ctx, name, f)
	if err != nil {
		os.Remove(dest)
		return err
	}
	color.Green("Saved %s (%s)", dest, model.FormatSize(n))
	return nil
}

func (a *app) listKnowledgeBases(ctx context.Context, args []string) error {
	var search, order string
	if len(args) > 0 {
		search = args[0]
	}
	if len(args) > 1 {
		order = args[1]
	}

	kbs, err := a.knowledge.Query(ctx, search, service.ParseSortOrder(order))
	if err != nil {
		return err
	}
	if len(kbs) == 0 {
		color.HiBlack("No knowledge bases found.")
		return nil
	}
	for _, kb := range kbs {
		fmt.Printf("  %-24s %-30s %s  %d docs\n", kb.ID, kb.Name, kb.CreatedAt, kb.Documents)
		if kb.Description != "" {
			color.HiBlack("  %s", kb.Description)
		}
	}
	return nil
}

func (a *app) issueToken(args []string) error {
	subject := "admin"
	if len(args) > 0 {
		subject = args[0]
	}
	token, err := middleware.IssueAdminToken(a.cfg.Auth.JWTSecret, subject, 12*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
