package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// zoneCacheRow maps a UGC zone code to its resolved ZIP list. Zone shapes
// change rarely, so entries persist across restarts; last write wins.
type zoneCacheRow struct {
	ZoneCode  string            `gorm:"column:zone_code;primaryKey;size:6"`
	Zips      domain.StringList `gorm:"column:zips;type:jsonb"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (zoneCacheRow) TableName() string { return "zone_zip_cache" }

// GetZoneZips looks up a cached zone resolution. The second return reports a
// cache hit; an empty cached list is a valid hit.
func (s *Store) GetZoneZips(ctx context.Context, code string) ([]string, bool, error) {
	var row zoneCacheRow
	err := s.db.WithContext(ctx).First(&row, "zone_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("zone cache read: %w", err)
	}
	return row.Zips, true, nil
}

// PutZoneZips writes a zone resolution, replacing any previous entry.
func (s *Store) PutZoneZips(ctx context.Context, code string, zips []string) error {
	row := zoneCacheRow{
		ZoneCode:  code,
		Zips:      zips,
		UpdatedAt: domain.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "zone_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"zips", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("zone cache write: %w", err)
	}
	return nil
}
