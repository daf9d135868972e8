package replicate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/replicate/replicate-go"

	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

type PredictionInput = replicate.PredictionInput
type PredictionOutput = replicate.PredictionOutput

type File = replicate.File
type FileOutput = replicate.FileOutput

var ErrUnsupportedOutput = errors.New("unsupported prediction output")

type Config struct {
	model string

	token   string
	baseURL string
}

type Option func(*Config)

func WithToken(token string) Option {
	return func(c *Config) {
		c.token = token
	}
}

func WithURL(url string) Option {
	return func(c *Config) {
		c.baseURL = url
	}
}

func (c *Config) Options() []replicate.ClientOption {
	var options []replicate.ClientOption

	if c.token != "" {
		options = append(options, replicate.WithToken(c.token))
	} else {
		options = append(options, replicate.WithTokenFromEnv())
	}

	if c.baseURL != "" {
		options = append(options, replicate.WithBaseURL(c.baseURL))
	}

	return options
}

// Client runs a single Replicate model.
type Client struct {
	*Config
	client *replicate.Client
}

func New(model string, options ...Option) (*Client, error) {
	cfg := &Config{
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	client, err := replicate.NewClient(cfg.Options()...)
	if err != nil {
		return nil, err
	}

	return &Client{
		Config: cfg,
		client: client,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Run creates a prediction and polls it until it succeeds, fails or is
// canceled. Blocking mode is not used: it returns as soon as the prediction
// leaves "starting", often with no output yet.
func (c *Client) Run(ctx context.Context, input PredictionInput) (PredictionOutput, error) {
	return c.client.RunWithOptions(ctx, c.model, input, nil, replicate.WithFileOutput())
}

// UploadFile sends a local file to Replicate's file API so it can be passed
// to a model as input.
func (c *Client) UploadFile(ctx context.Context, path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return c.client.CreateFileFromBytes(ctx, data, &replicate.CreateFileOptions{
		Filename:    filepath.Base(path),
		ContentType: storage.ContentType(path),
	})
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.client.DeleteFile(ctx, fileID)
}

// FileURL returns the URL a model input should reference for an uploaded file.
func FileURL(file *File) string {
	return file.URLs["get"]
}

// WriteOutput copies the first file of a prediction output to path.
func WriteOutput(output PredictionOutput, path string) error {
	file, err := firstFile(output)
	if err != nil {
		return err
	}
	defer file.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(f, file); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func firstFile(output PredictionOutput) (*FileOutput, error) {
	switch v := output.(type) {
	case *FileOutput:
		return v, nil
	case []any:
		for _, item := range v {
			if file, ok := item.(*FileOutput); ok {
				return file, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedOutput, output)
}
