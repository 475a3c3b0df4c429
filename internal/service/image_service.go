package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/ghola/internal/apperr"
	"github.com/digkill/ghola/internal/config"
	"github.com/digkill/ghola/internal/models"
	"github.com/digkill/ghola/internal/prompt"
	"github.com/digkill/ghola/internal/replicate"
)

const (
	replicateProvider = "Replicate"

	// MissingPromptMessage is shared by both gateways and the HTTP layer.
	MissingPromptMessage = "Please provide a prompt in the request body"

	fixedSeed     = 42
	numOutputs    = 1
	outputFormat  = "jpg"
	outputQuality = 100
)

type ImageRunner interface {
	Run(ctx context.Context, model string, input replicate.Input) ([]string, error)
}

// Archiver moves inline images to durable storage.
type Archiver interface {
	Archive(ctx context.Context, ref models.ImageRef) (models.ImageRef, error)
}

// Dispatcher hands finished generations to best-effort sinks without blocking.
type Dispatcher interface {
	Go(ctx context.Context, rec models.GenerationLog)
}

type ImageInput struct {
	Prompt      string
	Premium     bool
	AspectRatio string
	Style       string
	Character   string
	Email       string
}

type ImageService struct {
	apiToken     string
	freeModel    string
	premiumModel string
	log          *slog.Logger
	runner       ImageRunner
	archiver     Archiver
	sinks        Dispatcher
	now          func() time.Time
}

// NewImageService wires the image gateway. archiver and sinks are optional.
func NewImageService(cfg config.Config, log *slog.Logger, runner ImageRunner, archiver Archiver, sinks Dispatcher) *ImageService {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ImageService{
		apiToken:     cfg.ReplicateAPIToken,
		freeModel:    cfg.ReplicateFreeModel,
		premiumModel: cfg.ReplicatePremiumModel,
		log:          log,
		runner:       runner,
		archiver:     archiver,
		sinks:        sinks,
		now:          time.Now,
	}
}

func (s *ImageService) Ready() error {
	if s.apiToken == "" || s.runner == nil {
		return apperr.Configuration(replicateProvider)
	}
	return nil
}

// ModelFor picks the fast model for free requests and the quality model for premium ones.
func (s *ImageService) ModelFor(tier models.Tier) string {
	if tier == models.TierPremium {
		return s.premiumModel
	}
	return s.freeModel
}

// Generate runs one prediction and returns the normalised images. Every error is an *apperr.Error.
func (s *ImageService) Generate(ctx context.Context, in ImageInput) (*models.GenerationResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, apperr.Validation(MissingPromptMessage)
	}

	tier := models.TierFromPremium(in.Premium)
	style := models.ParseStyle(in.Style)
	aspect := models.ParseAspectRatio(in.AspectRatio)
	model := s.ModelFor(tier)

	text := in.Prompt
	if tier == models.TierPremium {
		text = prompt.StylePrefix(style) + text
	}

	seed := fixedSeed
	input := replicate.Input{
		Prompt:        text,
		AspectRatio:   prompt.ProviderRatio(aspect),
		NumOutputs:    numOutputs,
		OutputFormat:  outputFormat,
		OutputQuality: outputQuality,
		Seed:          &seed,
	}

	s.log.Info("generating image", "tier", tier, "model", model, "style", style, "aspect_ratio", input.AspectRatio)
	outputs, err := s.runner.Run(ctx, model, input)
	if err != nil {
		classified := apperr.Classify(replicateProvider, err)
		s.log.Error("image generation failed", "kind", classified.Kind, "model", model, "err", err)
		return nil, classified
	}

	images, err := s.resolve(ctx, outputs)
	if err != nil {
		return nil, err
	}

	result := &models.GenerationResult{
		ID:            uuid.NewString(),
		Images:        images,
		Tier:          tier,
		Style:         style,
		AspectRatio:   aspect,
		CharacterName: in.Character,
		Model:         model,
		Prompt:        text,
	}

	if s.sinks != nil {
		s.sinks.Go(ctx, models.GenerationLog{
			ID:           result.ID,
			Character:    in.Character,
			Prompt:       text,
			Tier:         tier,
			Ratio:        input.AspectRatio,
			Style:        style,
			ImageURL:     firstURL(images),
			ContactEmail: strings.TrimSpace(in.Email),
			Model:        model,
			CreatedAt:    s.now().UTC(),
		})
	}
	return result, nil
}

// resolve parses provider output once; inline images are archived when storage is configured.
func (s *ImageService) resolve(ctx context.Context, outputs []string) ([]models.ImageRef, error) {
	images := make([]models.ImageRef, 0, len(outputs))
	for _, raw := range outputs {
		ref, err := models.ParseImageRef(raw)
		if err != nil {
			return nil, apperr.Provider(replicateProvider, "invalid image output", fmt.Errorf("parse output: %w", err))
		}
		if ref.IsInline() && s.archiver != nil {
			archived, err := s.archiver.Archive(ctx, ref)
			if err != nil {
				s.log.Warn("archive inline image", "err", err)
			} else {
				ref = archived
			}
		}
		images = append(images, ref)
	}
	if len(images) == 0 {
		return nil, apperr.Provider(replicateProvider, "no images returned", nil)
	}
	return images, nil
}

func firstURL(images []models.ImageRef) string {
	for _, img := range images {
		if !img.IsInline() {
			return img.URL
		}
	}
	return ""
}
