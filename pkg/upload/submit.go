package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Progress is called as file bytes are streamed to the server.
type Progress func(sent, total int64)

type Uploader struct {
	client  *http.Client
	siteURL string
}

func NewUploader(client *http.Client, siteURL string) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{client: client, siteURL: strings.TrimRight(siteURL, "/")}
}

type progressReader struct {
	r        io.Reader
	sent     atomic.Int64
	total    int64
	progress Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		sent := p.sent.Add(int64(n))
		if p.progress != nil {
			p.progress(sent, p.total)
		}
	}
	return n, err
}

// Submit posts the form as multipart/form-data to <site>/upload, streaming
// the file without buffering it in memory.
func (u *Uploader) Submit(ctx context.Context, v *Validated, progress Progress) error {
	f, err := os.Open(v.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", v.FilePath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, v, &progressReader{r: f, total: v.Size, progress: progress}))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.siteURL+"/upload", pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log.Info().Str("module", "upload").Str("file", v.Name).Str("type", string(v.Type)).Int64("size", v.Size).Msg("uploading")
	resp, err := u.client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upload rejected: %s", resp.Status)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeForm(mw *multipart.Writer, v *Validated, file io.Reader) error {
	fields := []struct{ name, value string }{
		{"title", v.Title},
		{"description", v.Description},
		{"category_id", strconv.Itoa(v.CategoryID)},
	}
	if v.Public {
		fields = append(fields, struct{ name, value string }{"is_public", "on"})
	}
	for _, field := range fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media_file"; filename="%s"`, quoteEscaper.Replace(v.Name)))
	h.Set("Content-Type", v.MimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
