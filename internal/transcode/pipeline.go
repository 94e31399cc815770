// Package transcode turns uploaded files and links into the two encodings a
// sound is stored in. Downloading happens in Go; extraction from streaming
// sites and the encoding itself are delegated to external tools.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/glizzus/soundboard/internal/sound"
)

// ChunkSize is how much of a download is read at a time.
const ChunkSize = 1024 * 1024

// ExtractedFile is the fixed name the stream extractor writes to.
const ExtractedFile = "sound.m4a"

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Runner runs an external program and returns its combined stdout and stderr.
// A non-zero exit is reported as an error alongside the output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var _ Runner = ExecRunner{}

// Attachment is a file uploaded alongside a command.
type Attachment struct {
	Filename string
	URL      string
}

// Pipeline fetches source media and encodes it.
type Pipeline struct {
	FFmpegPath    string
	ExtractorPath string
	HTTPClient    HTTPClient
	Runner        Runner
}

func NewPipeline(ffmpegPath, extractorPath string) *Pipeline {
	return &Pipeline{
		FFmpegPath:    ffmpegPath,
		ExtractorPath: extractorPath,
		HTTPClient:    http.DefaultClient,
		Runner:        ExecRunner{},
	}
}

func extension(name string) (string, bool) {
	ext := path.Ext(name)
	if len(ext) <= 1 {
		return "", false
	}
	return ext[1:], true
}

// FetchAttachment downloads an attachment into dir, named after its extension.
func (p *Pipeline) FetchAttachment(ctx context.Context, dir string, attachment Attachment) (string, error) {
	ext, ok := extension(attachment.Filename)
	if !ok {
		slog.Debug("Attachment has no extension", "filename", attachment.Filename)
		return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, attachment.Filename)
	}

	dest := filepath.Join(dir, "tmp."+ext)
	slog.Debug("Saving attachment", "filename", attachment.Filename, "dest", dest)
	if err := p.download(ctx, attachment.URL, dest); err != nil {
		Cleanup(dest)
		return "", err
	}
	return dest, nil
}

// FetchLink downloads a link into dir. Links whose path ends in a file
// extension are downloaded directly; anything else goes through the extractor.
func (p *Pipeline) FetchLink(ctx context.Context, dir, link string) (string, error) {
	link = strings.TrimSpace(link)
	parsed, err := url.Parse(link)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", &DownloadError{Source: link, Err: errors.New("invalid URL")}
	}

	ext, ok := extension(path.Base(parsed.Path))
	if !ok {
		slog.Debug("Link has no file extension, trying the extractor", "link", link)
		return p.extract(ctx, dir, link)
	}

	dest := filepath.Join(dir, "tmp."+ext)
	slog.Debug("Saving link", "link", link, "dest", dest)
	if err := p.download(ctx, link, dest); err != nil {
		Cleanup(dest)
		return "", err
	}
	return dest, nil
}

func (p *Pipeline) download(ctx context.Context, source, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return &DownloadError{Source: source, Err: err}
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return &DownloadError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{Source: source, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(onlyWriter{f}, onlyReader{resp.Body}, buf); err != nil {
		f.Close()
		return &DownloadError{Source: source, Err: err}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return nil
}

// onlyReader and onlyWriter hide ReadFrom/WriteTo so that io.CopyBuffer
// actually reads in ChunkSize pieces.
type onlyReader struct{ io.Reader }
type onlyWriter struct{ io.Writer }

func (p *Pipeline) extract(ctx context.Context, dir, link string) (string, error) {
	dest := filepath.Join(dir, ExtractedFile)
	args := []string{link, "-f", "m4a", "-o", dest}
	slog.Debug("Executing extractor", "cmd", p.ExtractorPath, "args", args)

	output, err := p.Runner.Run(ctx, p.ExtractorPath, args...)
	slog.Debug("Extractor exited", "output", string(output))
	if err != nil {
		Cleanup(dest)
		return "", &ConversionError{
			Stage:  StageExtract,
			Tool:   filepath.Base(p.ExtractorPath),
			Output: strings.TrimSpace(string(output)),
			Err:    err,
		}
	}
	return dest, nil
}

// Encode converts src into both variants. Previous variants are removed
// first so a failed run cannot leave an old and a new file side by side.
// src is removed afterwards no matter the outcome.
func (p *Pipeline) Encode(ctx context.Context, src string, variants sound.Variants) error {
	defer Cleanup(src)

	for _, stale := range []string{variants.General, variants.Transport} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove previous %s: %w", stale, err)
		}
	}

	args := []string{"-i", src, variants.General, variants.Transport}
	slog.Debug("Executing encoder", "cmd", p.FFmpegPath, "args", args)

	output, err := p.Runner.Run(ctx, p.FFmpegPath, args...)
	slog.Debug("Encoder exited", "output", string(output))
	if err != nil {
		return &ConversionError{
			Stage:  StageEncode,
			Tool:   filepath.Base(p.FFmpegPath),
			Output: TrimBanner(string(output)),
			Err:    err,
		}
	}
	return nil
}

// Cleanup removes a temporary file and then its directory if that left it empty.
func Cleanup(file string) {
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove temporary file", "file", file, "error", err)
	}
	// Fails harmlessly when the directory still has something in it.
	_ = os.Remove(filepath.Dir(file))
}

// TrimBanner drops ffmpeg's version and library banner from its output,
// keeping what comes after the last "  lib..." line.
func TrimBanner(output string) string {
	idx := strings.LastIndex(output, "\n  lib")
	if idx < 0 {
		return strings.TrimSpace(output)
	}
	rest := output[idx+1:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return ""
	}
	return strings.TrimSpace(rest[nl+1:])
}
