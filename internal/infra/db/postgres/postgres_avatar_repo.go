package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
)

var _ repository.AvatarRepository = (*AvatarRepo)(nil)

type AvatarRepo struct {
	pool *pgxpool.Pool
}

func NewAvatarRepo(pool *pgxpool.Pool) *AvatarRepo {
	return &AvatarRepo{pool: pool}
}

func (r *AvatarRepo) FindByID(ctx context.Context, qx any, id string) (*model.Avatar, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, name, specialty, system_prompt, model, active, created_at, updated_at
  FROM avatars WHERE id = $1;`
	var a model.Avatar
	err = ex.QueryRow(ctx, q, id).Scan(&a.ID, &a.Name, &a.Specialty, &a.SystemPrompt,
		&a.Model, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan avatar: %w", err)
	}
	return &a, nil
}

func (r *AvatarRepo) ListActive(ctx context.Context, qx any) ([]*model.Avatar, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, name, specialty, system_prompt, model, active, created_at, updated_at
  FROM avatars WHERE active ORDER BY name;`
	rows, err := ex.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Avatar
	for rows.Next() {
		var a model.Avatar
		if err := rows.Scan(&a.ID, &a.Name, &a.Specialty, &a.SystemPrompt,
			&a.Model, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *AvatarRepo) Save(ctx context.Context, qx any, a *model.Avatar) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO avatars (id, name, specialty, system_prompt, model, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()),NOW())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  specialty = EXCLUDED.specialty,
  system_prompt = EXCLUDED.system_prompt,
  model = EXCLUDED.model,
  active = EXCLUDED.active,
  updated_at = NOW();`
	_, err = ex.Exec(ctx, q, a.ID, a.Name, a.Specialty, a.SystemPrompt, a.Model, a.Active, a.CreatedAt)
	return err
}
