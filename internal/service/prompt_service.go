package service

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/digkill/ghola/internal/apperr"
	"github.com/digkill/ghola/internal/config"
	"github.com/digkill/ghola/internal/models"
	"github.com/digkill/ghola/internal/prompt"
)

const openAIProvider = "OpenAI"

// Completer issues a single system+user chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type PromptInput struct {
	Prompt      string
	AspectRatio string
	Style       string
}

// PromptService turns a character name into a detailed image-generation prompt.
type PromptService struct {
	apiKey    string
	log       *slog.Logger
	completer Completer
}

func NewPromptService(cfg config.Config, log *slog.Logger, completer Completer) *PromptService {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PromptService{
		apiKey:    cfg.OpenAIAPIKey,
		log:       log,
		completer: completer,
	}
}

// Ready fails with a configuration error when the completion credential is missing.
func (s *PromptService) Ready() error {
	if s.apiKey == "" || s.completer == nil {
		return apperr.Configuration(openAIProvider)
	}
	return nil
}

// Enrich returns the trimmed first completion choice. Every error is an *apperr.Error.
func (s *PromptService) Enrich(ctx context.Context, in PromptInput) (models.EnrichedPrompt, error) {
	if err := s.Ready(); err != nil {
		return models.EnrichedPrompt{}, err
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return models.EnrichedPrompt{}, apperr.Validation(MissingPromptMessage)
	}

	style := models.ParseStyle(in.Style)
	s.log.Info("enriching character prompt", "character", in.Prompt, "style", style, "aspect_ratio", models.ParseAspectRatio(in.AspectRatio))

	system, user := prompt.Messages(in.Prompt, style)
	text, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		classified := apperr.Classify(openAIProvider, err)
		s.log.Error("prompt enrichment failed", "kind", classified.Kind, "err", err)
		return models.EnrichedPrompt{}, classified
	}
	return models.EnrichedPrompt{Text: text}, nil
}
