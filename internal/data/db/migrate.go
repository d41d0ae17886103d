package db

import (
	"embed"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	types "github.com/voxpipe/voxpipe/internal/domain/pipeline"
)

//go:embed migrations/*.sql
var gooseMigrations embed.FS

// AutoMigrateCore creates/updates the five core tables via gorm's
// AutoMigrate, matching the teacher's own migrate.go convention of one
// AutoMigrate call per entity. Constraints AutoMigrate cannot express
// (CHECK constraints, the CRM-correlation columns' partial index) are
// handled by the append-only goose migration in RunGooseMigrations.
func AutoMigrateCore(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.Operator{},
		&types.File{},
		&types.Transcription{},
		&types.Diarization{},
		&types.Analysis{},
	)
}

// RunGooseMigrations applies the append-only SQL migrations spec.md §6
// requires (CRM-correlation columns + order_id index + score CHECK
// constraints), grounded on jordigilh-kubernaut's use of goose for the
// schema concerns gorm's AutoMigrate cannot express.
func RunGooseMigrations(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	goose.SetBaseFS(gooseMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(sqlDB, "migrations")
}
