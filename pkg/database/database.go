package database

import (
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/pkg/logger"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.Exam{},
		&model.ExamAttempt{},
		&model.Conversation{},
		&model.ChatMessage{},
		&model.Summary{},
		&model.GeneratedExam{},
	)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("database migration completed")
	return db, nil
}
