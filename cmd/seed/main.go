package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"brainstorm/internal/app"
	"brainstorm/internal/config"
	"brainstorm/internal/logging"
	"brainstorm/internal/model"
	"brainstorm/internal/service"
)

const demoPassword = "brainstorm"

var demoUsers = []model.RegisterRequest{
	{Name: "Ana Ribeiro", Nick: "ana", Email: "ana@demo.local"},
	{Name: "Bruno Costa", Nick: "bruno", Email: "bruno@demo.local"},
	{Name: "Carla Mendes", Nick: "carla", Email: "carla@demo.local"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close(context.Background())

	var host *model.User
	for i := range demoUsers {
		req := demoUsers[i]
		req.Password, req.ConfirmPassword = demoPassword, demoPassword

		if _, err := a.Auth.Register(ctx, &req); err != nil && !errors.Is(err, service.ErrEmailTaken) {
			logger.Fatal("failed to create user", zap.String("email", req.Email), zap.Error(err))
		}
		user, err := a.UserRepo.GetByEmail(ctx, req.Email)
		if err != nil {
			logger.Fatal("failed to load user", zap.String("email", req.Email), zap.Error(err))
		}
		if host == nil {
			host = user
		}
		logger.Info("demo user ready", zap.String("email", req.Email), zap.String("user_id", user.ID.Hex()))
	}

	session, err := a.Sessions.Create(ctx, service.ActorFromUser(host, ""), &service.NewSessionInput{
		Theme:    "Como reduzir o desperdício alimentar no campus",
		RoomCode: "DEMO-01",
		Levels: []model.Level{
			{Order: 1, Seconds: 60},
			{Order: 2, Seconds: 90},
			{Order: 3, Seconds: 120},
		},
	})
	switch {
	case errors.Is(err, service.ErrRoomCodeTaken):
		logger.Info("demo session already exists", zap.String("code", "DEMO-01"))
	case err != nil:
		logger.Fatal("failed to create session", zap.Error(err))
	default:
		logger.Info("demo session created",
			zap.String("session_id", session.ID.Hex()),
			zap.String("code", session.RoomCode))
	}

	fmt.Printf("Seed complete. Log in with any demo email and password %q\n", demoPassword)
}
