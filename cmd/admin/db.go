package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
)

// databaseFlags 中的非空值覆盖环境变量。
type databaseFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

func openDatabase() (*gorm.DB, error) {
	dbCfg, err := loadDatabaseConfig(dbFlags)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	return db, nil
}

func loadDatabaseConfig(f databaseFlags) (config.DatabaseConfig, error) {
	host := firstNonEmpty(f.host, os.Getenv("DATABASE_HOST"), "localhost")
	name := firstNonEmpty(f.name, os.Getenv("POSTGRES_DB"), os.Getenv("DB_NAME"))
	user := firstNonEmpty(f.user, os.Getenv("POSTGRES_USER"), os.Getenv("DB_USER"))
	password := firstNonEmpty(f.password, os.Getenv("POSTGRES_PASSWORD"), os.Getenv("DB_PASSWORD"))
	sslmode := firstNonEmpty(f.sslMode, os.Getenv("DATABASE_SSLMODE"), "disable")

	port := f.port
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	if name == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if user == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,

		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
