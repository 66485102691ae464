package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"avatar-therapy-chat/internal/config"
	"avatar-therapy-chat/internal/domain/model"
	pg "avatar-therapy-chat/internal/infra/db/postgres"
	"avatar-therapy-chat/internal/infra/logging"
	"avatar-therapy-chat/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	grantUser := flag.String("grant-user", "", "optionally grant demo credits to this user id")
	grantAmount := flag.Int("grant-amount", 50, "credits to grant with -grant-user")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	avatarRepo := pg.NewAvatarRepo(pool)

	// If personas already exist, do nothing
	existing, err := avatarRepo.ListActive(ctx, nil)
	if err != nil {
		log.Fatalf("list avatars: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d avatars already present. No changes.\n", len(existing))
		for _, a := range existing {
			fmt.Printf("  - %s (%s)\n", a.Name, a.Specialty)
		}
	} else {
		now := time.Now()
		seed := []*model.Avatar{
			{
				ID:        "dr-maya",
				Name:      "Dr. Maya",
				Specialty: "anxiety",
				SystemPrompt: "You are Dr. Maya, a warm, evidence-based therapist specializing in " +
					"anxiety. Keep responses short, ask one question at a time, and never give " +
					"medical diagnoses.",
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
			{
				ID:        "dr-sam",
				Name:      "Dr. Sam",
				Specialty: "relationships",
				SystemPrompt: "You are Dr. Sam, a couples and relationships counselor. Reflect the " +
					"user's feelings back before offering perspective.",
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
			{
				ID:        "coach-lena",
				Name:      "Coach Lena",
				Specialty: "motivation",
				SystemPrompt: "You are Coach Lena, a supportive motivational coach. Focus on small, " +
					"concrete next steps.",
				Model:  "gemini-2.0-flash",
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
		}
		for _, a := range seed {
			if err := avatarRepo.Save(ctx, nil, a); err != nil {
				log.Fatalf("seed avatar %s: %v", a.ID, err)
			}
			fmt.Printf("seeded avatar %s (%s)\n", a.Name, a.Specialty)
		}
	}

	if *grantUser != "" {
		logger := logging.New(cfg.Log, true)
		ledgerUC := usecase.NewLedgerUseCase(pg.NewLedgerRepo(pool), logger)
		rec, err := ledgerUC.Grant(ctx, *grantUser, *grantAmount, model.TransactionGranted, "seed", "demo credit grant")
		if err != nil {
			log.Fatalf("grant: %v", err)
		}
		fmt.Printf("granted %d credits to %s (tx %s)\n", *grantAmount, *grantUser, rec.ID)
	}
}
