package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/ghola/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Name identifies the repository when it is used as a best-effort sink.
func (r *GenerationRepository) Name() string {
	return "mysql"
}

// Deliver stores the generation record.
func (r *GenerationRepository) Deliver(ctx context.Context, rec models.GenerationLog) error {
	return r.Log(ctx, rec)
}

func (r *GenerationRepository) Log(ctx context.Context, rec models.GenerationLog) error {
	const query = `
INSERT INTO generation_logs (generation_id, character_name, prompt, tier, ratio, style, model, image_url, contact_email)
VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.Character, rec.Prompt, rec.Tier, rec.Ratio, rec.Style, rec.Model, rec.ImageURL, rec.ContactEmail); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}
