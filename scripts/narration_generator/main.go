package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/content"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// Synthesizer turns text into MP3 bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type googleTTS struct {
	client   *texttospeech.Client
	language string
	voice    string
}

func (g *googleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("SynthesizeSpeech: %w", err)
	}
	return resp.AudioContent, nil
}

// job is one text block to narrate.
type job struct {
	LessonID string
	Index    int
	Text     string
}

func (j job) fileName() string {
	return fmt.Sprintf("%s-%d.mp3", j.LessonID, j.Index)
}

type options struct {
	backendURL string
	courseIDs  []string
	outDir     string
	workers    int
	pause      time.Duration
	language   string
	voice      string
	force      bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "narration_generator",
		Short: "Synthesize MP3 narration for the text blocks of video/text lessons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New("dev")
			if err != nil {
				return err
			}
			defer log.Sync()
			if opts.backendURL == "" {
				opts.backendURL = os.Getenv("BACKEND_URL")
			}

			ctx := cmd.Context()
			// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
			client, err := texttospeech.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("create TTS client: %w", err)
			}
			defer client.Close()

			api, err := apiclient.New(opts.backendURL, apiclient.WithLogger(log))
			if err != nil {
				return err
			}
			tts := &googleTTS{client: client, language: opts.language, voice: opts.voice}
			return run(ctx, log, api, tts, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.backendURL, "backend", "", "learning backend URL (default $BACKEND_URL)")
	f.StringSliceVar(&opts.courseIDs, "course", nil, "only these course ids")
	f.StringVarP(&opts.outDir, "out", "o", "media", "output directory")
	f.IntVarP(&opts.workers, "workers", "w", 10, "concurrent TTS requests")
	f.DurationVar(&opts.pause, "pause", 700*time.Millisecond, "pause per worker between requests")
	f.StringVar(&opts.language, "language", "ru-RU", "voice language code")
	f.StringVar(&opts.voice, "voice", "ru-RU-Standard-A", "voice name")
	f.BoolVar(&opts.force, "force", false, "regenerate existing files")
	return cmd
}

// run collects the jobs and narrates them with a worker pool.
func run(ctx context.Context, log *logger.Logger, api *apiclient.Client, tts Synthesizer, opts options) error {
	if err := os.MkdirAll(opts.outDir, os.ModePerm); err != nil {
		return fmt.Errorf("create %s: %w", opts.outDir, err)
	}
	jobs, err := collect(ctx, log, api, opts)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Info("every text block is already narrated")
		return nil
	}
	log.Info("blocks to narrate", "count", len(jobs))

	workers := opts.workers
	if workers < 1 {
		workers = 1
	}
	queue := make(chan job, len(jobs))
	results := make(chan error, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(ctx, &wg, log, tts, opts, queue, results)
	}
	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()
	close(results)

	var failed int
	for err := range results {
		if err != nil {
			failed++
		}
	}
	log.Info("narration finished", "ok", len(jobs)-failed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d blocks failed", failed, len(jobs))
	}
	return nil
}

// collect walks the catalog and returns the text blocks without audio.
func collect(ctx context.Context, log *logger.Logger, api *apiclient.Client, opts options) ([]job, error) {
	catalog := courses.NewRemoteCatalog(api)
	cache := content.New(api, log)

	ids := opts.courseIDs
	if len(ids) == 0 {
		list, err := catalog.Courses(ctx)
		if err != nil {
			return nil, fmt.Errorf("list courses: %w", err)
		}
		for _, c := range list {
			ids = append(ids, c.ID)
		}
	}

	var jobs []job
	for _, courseID := range ids {
		lessons, err := catalog.Lessons(ctx, courseID)
		if err != nil {
			return nil, fmt.Errorf("list lessons of %s: %w", courseID, err)
		}
		for _, l := range lessons {
			if l.Type != models.LessonVideoText {
				continue
			}
			body, err := cache.Fetch(ctx, l.ID, content.Options{})
			if err != nil {
				log.Warn("skipping lesson, content unavailable", "lesson_id", l.ID, "error", err)
				continue
			}
			n := 0
			for _, b := range body.Blocks {
				text := strings.TrimSpace(b.Text)
				if b.Type != "text" || text == "" {
					continue
				}
				n++
				j := job{LessonID: l.ID, Index: n, Text: text}
				if !opts.force && exists(filepath.Join(opts.outDir, j.fileName())) {
					continue
				}
				jobs = append(jobs, j)
			}
		}
	}
	return jobs, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func worker(ctx context.Context, wg *sync.WaitGroup, log *logger.Logger, tts Synthesizer, opts options, queue <-chan job, results chan<- error) {
	defer wg.Done()
	for j := range queue {
		err := narrate(ctx, tts, j, opts.outDir)
		if err != nil {
			log.Warn("narration failed", "lesson_id", j.LessonID, "block", j.Index, "error", err)
		} else {
			log.Info("narrated", "file", j.fileName())
		}
		results <- err

		// Keeps 10 workers under the 1000 requests/minute TTS quota.
		select {
		case <-ctx.Done():
			return
		case <-time.After(opts.pause):
		}
	}
}

func narrate(ctx context.Context, tts Synthesizer, j job, outDir string) error {
	audio, err := tts.Synthesize(ctx, j.Text)
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return errors.New("empty audio")
	}
	return os.WriteFile(filepath.Join(outDir, j.fileName()), audio, 0o644)
}
