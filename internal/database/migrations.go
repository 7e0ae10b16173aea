package database

import (
	"errors"
	"time"

	"github.com/skeinsocial/skein/backend/internal/threads"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillRootHash = "2026-08-12_backfill_cast_root_hash"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillRootHash, apply: backfillRootHash},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillRootHash repairs rows ingested before root pointers were
// mandatory: a parentless row is its own root.
func backfillRootHash(db *gorm.DB) error {
	return db.Model(&threads.Post{}).
		Where("root_hash = '' AND parent_hash IS NULL").
		Update("root_hash", gorm.Expr("hash")).Error
}
