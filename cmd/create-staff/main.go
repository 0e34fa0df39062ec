// Command create-staff provisions a staff account directly in the database.
// It is used to bootstrap the first superadmin before anyone can log in.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/internal/repository"
	"github.com/noah-isme/camp-checkin-api/internal/service"
	"github.com/noah-isme/camp-checkin-api/pkg/config"
	"github.com/noah-isme/camp-checkin-api/pkg/database"
)

func main() {
	email := flag.String("email", "", "staff email address")
	name := flag.String("name", "", "full name")
	role := flag.String("role", string(models.RoleSuperAdmin), "SUPERADMIN, ADMIN, CASHIER or COMMITTEE")
	flag.Parse()

	password := os.Getenv("STAFF_PASSWORD")
	if *email == "" || *name == "" || password == "" {
		log.Fatal("usage: STAFF_PASSWORD=... create-staff -email admin@example.org -name \"Camp Admin\" [-role SUPERADMIN]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to apply schema", zap.Error(err))
	}

	users := service.NewUserService(repository.NewUserRepository(db), nil, nil, logr)
	operator := models.Session{UserID: "create-staff", Role: models.RoleSuperAdmin}
	user, err := users.Create(ctx, operator, service.CreateUserRequest{
		Email:    *email,
		FullName: *name,
		Role:     models.UserRole(strings.ToUpper(*role)),
		Active:   true,
		Password: password,
	}, models.LoginRequest{UserAgent: "create-staff"})
	if err != nil {
		logr.Fatal("failed to create staff account", zap.Error(err))
	}
	logr.Info("staff account ready", zap.String("id", user.ID), zap.String("email", user.Email), zap.String("role", string(user.Role)))
}
