package repository

import (
	"context"

	"avatar-therapy-chat/internal/domain/model"
)

type AvatarRepository interface {
	FindByID(ctx context.Context, qx any, id string) (*model.Avatar, error)
	ListActive(ctx context.Context, qx any) ([]*model.Avatar, error)
	Save(ctx context.Context, qx any, a *model.Avatar) error
}
