package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	clientapi "github.com/iudanet/securehub/internal/client/api"
	"github.com/iudanet/securehub/pkg/api"
)

// UploadInput параметры команды upload
type UploadInput struct {
	Path       string
	Scope      string // everyone | department | user
	Department string
	User       string
}

// DownloadInput параметры команды download.
// Если Output пуст, файл сохраняется в Dir под именем с сервера.
type DownloadInput struct {
	FileID string
	Output string
	Dir    string
}

func (c *Cli) RunFiles(ctx context.Context) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	files, err := c.files.ListFiles(ctx, s.Token)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		c.io.Println("No files shared with you.")
		return nil
	}

	tw := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSIZE\tSHARED WITH\tFROM\tDATE")
	for _, f := range files {
		from := "-"
		if f.UploadedBy != nil {
			from = f.UploadedBy.Email
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			f.ID, f.Name, f.Size, audience(f), from, f.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func audience(f api.File) string {
	switch f.ReceiverType {
	case "department":
		return "department:" + f.ReceiverDepartment
	case "user":
		return "user:" + f.ReceiverUser
	default:
		return f.ReceiverType
	}
}

func (c *Cli) RunUpload(ctx context.Context, in UploadInput) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(in.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	resp, err := c.files.Upload(ctx, s.Token, clientapi.UploadRequest{
		Content:            file,
		FileName:           filepath.Base(in.Path),
		ReceiverType:       in.Scope,
		ReceiverDepartment: in.Department,
		ReceiverUser:       in.User,
	})
	if err != nil {
		return err
	}

	c.io.Println("✓ File uploaded!")
	c.io.Printf("ID: %s\n", resp.File.ID)
	c.io.Printf("Shared with: %s\n", audience(resp.File))
	return nil
}

func (c *Cli) RunDownload(ctx context.Context, in DownloadInput) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	deviceID, err := c.devices.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}

	dir := in.Dir
	if in.Output != "" {
		dir = filepath.Dir(in.Output)
	}
	if dir == "" {
		dir = "."
	}

	// Пишем во временный файл, имя известно только после ответа сервера
	tmp, err := os.CreateTemp(dir, ".securehub-download-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	name, err := c.files.Download(ctx, s.Token, in.FileID, deviceID, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write file: %w", closeErr)
	}
	if err != nil {
		return err
	}

	target := in.Output
	if target == "" {
		target = filepath.Join(dir, safeFileName(name, in.FileID))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}

	c.io.Printf("✓ Downloaded to %s\n", target)
	return nil
}

// safeFileName отбрасывает путь из имени с сервера
func safeFileName(name, fallback string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || base == "" {
		return fallback
	}
	return base
}

func (c *Cli) RunDelete(ctx context.Context, fileID string) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	if err := c.files.DeleteFile(ctx, s.Token, fileID); err != nil {
		return err
	}

	c.io.Printf("✓ File %s deleted\n", fileID)
	return nil
}
