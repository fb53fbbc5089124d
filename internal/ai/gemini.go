package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"sprint-academy/internal/logger"
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("ai: gemini api key is not configured")

const mentorInstruction = `You are a friendly web development mentor inside an HTML/CSS/JavaScript sandbox.
Answer in the language of the question. Be concise, explain why, and show short code fragments
instead of rewriting the whole page unless asked.`

// Gemini is the generative backend for the sandbox chat and the image lessons.
type Gemini struct {
	client     *genai.Client
	model      string
	imageModel string
	log        *logger.Logger
}

// NewGemini connects to the Gemini API.
func NewGemini(ctx context.Context, apiKey, model, imageModel string, log *logger.Logger) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
	}
	if log == nil {
		log = logger.Nop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{
		client:     client,
		model:      model,
		imageModel: imageModel,
		log:        log.With("service", "gemini"),
	}, nil
}

// BuildAssistPrompt combines the sandbox buffer and the user's prompt.
func BuildAssistPrompt(code, prompt string) string {
	var b strings.Builder
	b.WriteString("Current sandbox code:\n```html\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
	b.WriteString(strings.TrimSpace(prompt))
	return b.String()
}

// Assist answers a question about the sandbox code.
func (g *Gemini) Assist(ctx context.Context, code, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(BuildAssistPrompt(code, prompt), genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(mentorInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// AnalyzeImage describes an uploaded image for interactive-analyze lessons.
func (g *Gemini) AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("ai: empty image")
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini analyze image: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Image is a generated picture.
type Image struct {
	Data     []byte
	MIMEType string
	Caption  string
}

// EditImage applies an instruction to an image for interactive-edit lessons.
func (g *Gemini) EditImage(ctx context.Context, image []byte, mimeType, instruction string) (Image, error) {
	if len(image) == 0 {
		return Image{}, errors.New("ai: empty image")
	}
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(image, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return Image{}, fmt.Errorf("gemini edit image: %w", err)
	}
	out := Image{Caption: strings.TrimSpace(resp.Text())}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				out.Data = p.InlineData.Data
				out.MIMEType = p.InlineData.MIMEType
				return out, nil
			}
		}
	}
	return out, errors.New("ai: model returned no image")
}

// Disabled stands in when Gemini is not configured; every call fails so
// callers fall back to their default answers.
type Disabled struct{}

func (Disabled) Assist(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
