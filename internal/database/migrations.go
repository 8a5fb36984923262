package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNoteFullTextIndexes        = "2025-09-14_note_fulltext_indexes"
	migrationRepairNoteEnhancementCache = "2025-09-20_repair_note_enhancement_cache"
)

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
		{name: migrationNoteFullTextIndexes, apply: createNoteFullTextIndexes},
		{name: migrationRepairNoteEnhancementCache, apply: repairNoteEnhancementCache},
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

// createNoteFullTextIndexes adds GIN text-search indexes. SQLite has no equivalent.
func createNoteFullTextIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != DialectPostgres {
		return nil
	}
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_notes_title_search ON notes USING gin(to_tsvector('english', title))",
		"CREATE INDEX IF NOT EXISTS idx_notes_content_search ON notes USING gin(to_tsvector('english', coalesce(content, '')))",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

// repairNoteEnhancementCache realigns the denormalized note columns with the enhancement rows.
func repairNoteEnhancementCache(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`UPDATE notes SET enhancement_version = (
			SELECT COALESCE(MAX(e.version), 0) FROM enhancements e WHERE e.note_id = notes.id
		) WHERE enhancement_version < (
			SELECT COALESCE(MAX(e.version), 0) FROM enhancements e WHERE e.note_id = notes.id
		)`).Error; err != nil {
			return err
		}
		return tx.Exec(`UPDATE notes SET is_enhanced = EXISTS (
			SELECT 1 FROM enhancements e WHERE e.note_id = notes.id AND e.is_current = ?
		)`, true).Error
	})
}
