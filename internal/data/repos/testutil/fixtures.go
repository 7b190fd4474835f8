package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
)

// SeedVideo inserts a processing video with one pending item per quality.
func SeedVideo(tb testing.TB, ctx context.Context, tx *gorm.DB, filename string) *types.Video {
	tb.Helper()
	v := &types.Video{
		ID:       uuid.New(),
		Filename: filename,
		FilePath: "uploads/" + uuid.NewString() + "_" + filename,
		Duration: 12.5,
		Size:     2048,
		Status:   types.VideoStatusProcessing,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed video: %v", err)
	}
	items := types.PendingItems(v.ID)
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		tb.Fatalf("seed items: %v", err)
	}
	return v
}
