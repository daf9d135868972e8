// Package pipeline orchestrates one talking-head generation: stage the
// uploads, synthesize speech in the reference voice, then animate the image
// with that speech.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nikhilbhutani/talkinghead/internal/multimodal/tts"
	"github.com/nikhilbhutani/talkinghead/internal/multimodal/video"
	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

// SpeechFilename is the synthesized audio's name inside a workspace output dir.
const SpeechFilename = "speech.wav"

// Upload is one binary part of the request.
type Upload struct {
	Filename string // as sent by the client, untrusted
	Content  io.Reader
}

// GenerateRequest is a validated generation request.
type GenerateRequest struct {
	ID    string
	Text  string
	Image Upload
	Audio Upload
}

// NewGenerateRequest checks that all three inputs are present and assigns a
// fresh request id. It performs no I/O.
func NewGenerateRequest(text string, image, audio *Upload) (*GenerateRequest, error) {
	if text == "" || image == nil || image.Content == nil || audio == nil || audio.Content == nil {
		return nil, ErrMissingInput
	}
	return &GenerateRequest{
		ID:    uuid.NewString(),
		Text:  text,
		Image: *image,
		Audio: *audio,
	}, nil
}

// Staged is a request whose uploads are on disk.
type Staged struct {
	Workspace storage.Workspace
	Text      string
	ImagePath string
	AudioPath string
}

// Result holds the artifacts of a finished generation.
type Result struct {
	Workspace  storage.Workspace
	SpeechPath string
	VideoPath  string
}

type Options struct {
	// MaxConcurrent bounds simultaneous Generate calls. Zero means one.
	MaxConcurrent int
	// Timeout bounds the two synthesis steps together. Zero disables it.
	Timeout time.Duration
}

type Pipeline struct {
	workspaces *storage.Workspaces
	speech     tts.Synthesizer
	video      video.Synthesizer
	slots      *semaphore.Weighted
	timeout    time.Duration
}

func New(workspaces *storage.Workspaces, speech tts.Synthesizer, vid video.Synthesizer, opts Options) *Pipeline {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Pipeline{
		workspaces: workspaces,
		speech:     speech,
		video:      vid,
		slots:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout:    opts.Timeout,
	}
}

// Prepare creates the request's workspace and writes both uploads into it.
func (p *Pipeline) Prepare(req *GenerateRequest) (*Staged, error) {
	ws, err := p.workspaces.Create(req.ID)
	if err != nil {
		return nil, &StagingError{Kind: "workspace", Cause: err}
	}

	imagePath, err := p.workspaces.Stage(ws, "image", req.Image.Filename, req.Image.Content)
	if err != nil {
		return nil, &StagingError{Kind: "image", Cause: err}
	}

	audioPath, err := p.workspaces.Stage(ws, "audio", req.Audio.Filename, req.Audio.Content)
	if err != nil {
		return nil, &StagingError{Kind: "audio", Cause: err}
	}

	return &Staged{
		Workspace: ws,
		Text:      req.Text,
		ImagePath: imagePath,
		AudioPath: audioPath,
	}, nil
}

// Restore rebuilds a Staged from paths recorded earlier, e.g. in a queued
// task. The paths must lie inside the workspace for id.
func (p *Pipeline) Restore(id, text, imagePath, audioPath string) (*Staged, error) {
	ws, err := p.workspaces.Open(id)
	if err != nil {
		return nil, err
	}
	for _, path := range []string{imagePath, audioPath} {
		if filepath.Dir(path) != ws.UploadDir {
			return nil, fmt.Errorf("%w: %s", storage.ErrUnsafePath, path)
		}
	}
	return &Staged{Workspace: ws, Text: text, ImagePath: imagePath, AudioPath: audioPath}, nil
}

// Synthesize runs speech then video synthesis for staged inputs. A speech
// failure stops before the video collaborator is called.
func (p *Pipeline) Synthesize(ctx context.Context, staged *Staged) (*Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log := slog.With("request_id", staged.Workspace.ID)

	start := time.Now()
	speechPath, err := p.speech.SynthesizeSpeech(ctx, tts.SpeechRequest{
		Text:               staged.Text,
		ReferenceAudioPath: staged.AudioPath,
		OutputPath:         filepath.Join(staged.Workspace.OutputDir, SpeechFilename),
	})
	if err != nil {
		return nil, &SynthesisError{Stage: StageSpeech, Cause: err}
	}
	log.Info("speech synthesized", "backend", p.speech.Name(), "path", speechPath, "duration", time.Since(start))

	start = time.Now()
	videoPath, err := p.video.SynthesizeVideo(ctx, video.VideoRequest{
		ImagePath: staged.ImagePath,
		AudioPath: speechPath,
		OutputDir: staged.Workspace.OutputDir,
	})
	if err != nil {
		return nil, &SynthesisError{Stage: StageVideo, Cause: err}
	}
	log.Info("video synthesized", "backend", p.video.Name(), "path", videoPath, "duration", time.Since(start))

	return &Result{
		Workspace:  staged.Workspace,
		SpeechPath: speechPath,
		VideoPath:  videoPath,
	}, nil
}

// Generate stages and synthesizes a request synchronously. It waits for a
// free slot first, so at most MaxConcurrent generations run at once.
func (p *Pipeline) Generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	staged, err := p.Prepare(req)
	if err != nil {
		return nil, err
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for generation slot: %w", err)
	}
	defer p.slots.Release(1)

	return p.Synthesize(ctx, staged)
}

// Discard deletes the workspace of a staged request that will not run.
func (p *Pipeline) Discard(staged *Staged) error {
	return p.workspaces.Remove(staged.Workspace.ID)
}

// Ready reports whether the workspace roots are usable.
func (p *Pipeline) Ready() error {
	return p.workspaces.Ready()
}
