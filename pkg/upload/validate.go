package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the largest accepted upload, 1 GiB.
const MaxFileSize int64 = 1024 * 1024 * 1024

var (
	ErrNoFile          = errors.New("please select a file to upload")
	ErrEmptyTitle      = errors.New("please enter a title")
	ErrFileTooLarge    = errors.New("file size exceeds the maximum allowed size (1GB)")
	ErrUnsupportedType = errors.New("file type not allowed")
)

type MediaType string

const (
	Video MediaType = "video"
	Audio MediaType = "audio"
)

var videoExtensions = map[string]bool{
	"mp4": true, "avi": true, "mkv": true, "mov": true, "webm": true,
	"flv": true, "wmv": true, "m4v": true, "mpg": true, "mpeg": true,
	"3gp": true, "3g2": true, "mxf": true, "ts": true, "mts": true,
	"h264": true, "h265": true, "hevc": true, "divx": true, "f4v": true,
}

var audioExtensions = map[string]bool{
	"mp3": true, "wav": true, "ogg": true, "aac": true, "m4a": true,
	"flac": true, "opus": true, "wma": true, "alac": true, "ape": true,
	"ac3": true, "dts": true, "mid": true, "midi": true, "aiff": true,
	"aif": true,
}

// Form is what the user fills in before an upload.
type Form struct {
	FilePath    string
	Title       string
	Description string
	CategoryID  int
	Public      bool
}

// Validated is a form that passed Validate, with the facts learned about
// the file on the way.
type Validated struct {
	Form
	Name     string
	Size     int64
	Type     MediaType
	MimeType string
}

// Validate applies the upload form rules in order: file present, title
// not blank, size within MaxFileSize, then an allowed media type.
func Validate(form Form) (*Validated, error) {
	if strings.TrimSpace(form.FilePath) == "" {
		return nil, ErrNoFile
	}
	info, err := os.Stat(form.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFile, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNoFile, form.FilePath)
	}
	if strings.TrimSpace(form.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if info.Size() > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	mediaType, mime, err := Classify(form.FilePath)
	if err != nil {
		return nil, err
	}
	form.Title = strings.TrimSpace(form.Title)
	return &Validated{
		Form:     form,
		Name:     info.Name(),
		Size:     info.Size(),
		Type:     mediaType,
		MimeType: mime,
	}, nil
}

// Classify decides whether a file is video or audio. The extension must be
// on an allow-list; the sniffed content type wins when it is clearly video
// or audio, otherwise the extension decides.
func Classify(path string) (MediaType, string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	var byExt MediaType
	switch {
	case videoExtensions[ext]:
		byExt = Video
	case audioExtensions[ext]:
		byExt = Audio
	default:
		return "", "", fmt.Errorf("%w: .%s", ErrUnsupportedType, ext)
	}

	mime := "application/octet-stream"
	if m, err := mimetype.DetectFile(path); err == nil {
		mime = m.String()
	}
	switch {
	case strings.HasPrefix(mime, "video/"):
		return Video, mime, nil
	case strings.HasPrefix(mime, "audio/"):
		return Audio, mime, nil
	default:
		return byExt, mime, nil
	}
}
