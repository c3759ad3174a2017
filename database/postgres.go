package database

import (
	"log"

	"bandmate-backend/config"
	"bandmate-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Connect() {
	var err error
	DB, err = gorm.Open(postgres.Open(config.AppConfig.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Println("✅ Database connected successfully")

	if err := Migrate(DB); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	log.Println("✅ Database migrated successfully")
}

// Migrate runs auto-migration for all models. Split out from Connect so
// tests can run it against their own database handle.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Band{},
		&models.BandMember{},
		&models.Invitation{},
		&models.Event{},
		&models.Attendance{},
		&models.Message{},
		&models.Activity{},
	); err != nil {
		return err
	}

	// At most one pending invitation per (band, email). AutoMigrate
	// cannot express a partial index, so it is created with raw SQL.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_pending_band_email
		ON invitations (band_id, email) WHERE status = 'pending'`).Error
}
