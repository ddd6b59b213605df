package main

import (
	"context"
	"fmt"
	"log"

	"roofline-crm/backend/internal/config"
	"roofline-crm/backend/internal/logging"
	"roofline-crm/backend/internal/repository"
	"roofline-crm/backend/internal/workflow"
	"roofline-crm/backend/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	envFile string
	domain  string
)

// staticPhotoCounter lets seeded workflows pass photo gates without the media
// service running.
type staticPhotoCounter struct{ count int }

func (c staticPhotoCounter) CountPhotosForSubject(ctx context.Context, subjectID string) (int, error) {
	return c.count, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a dev tenant and demo production workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&envFile, "env", "", "Path to .env file")
	rootCmd.Flags().StringVar(&domain, "domain", "localhost", "Tenant domain to seed")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresWorkflowStore(pool)

	// 1. Ensure Tenant Exists
	tenant, err := store.GetTenantByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default tenant", "domain", domain)
		tenant = &models.Tenant{
			Name:   "Local Dev Tenant",
			Domain: domain,
		}
		if err := store.CreateTenant(ctx, tenant); err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}
	} else {
		logger.Info("Found existing tenant", "id", tenant.ID)
	}

	engine := workflow.NewEngine(store, staticPhotoCounter{count: 20}, logger, nil)

	// 2. Create Seed Workflows. Create is idempotent per subject so rerunning
	// the seed is safe.
	jobs := []struct {
		JobID string
		Flags models.FlagPatch
		To    []models.Stage
	}{
		{
			JobID: "job-maple-st-reroof",
		},
		{
			JobID: "job-oak-ave-repair",
			Flags: models.FlagPatch{
				NOCUploaded:                boolPtr(true),
				PermitApplicationSubmitted: boolPtr(true),
			},
			To: []models.Stage{models.StagePermitSubmitted},
		},
		{
			JobID: "job-elm-ct-new-build",
			Flags: models.FlagPatch{
				NOCUploaded:                boolPtr(true),
				PermitApplicationSubmitted: boolPtr(true),
				PermitApproved:             boolPtr(true),
			},
			To: []models.Stage{models.StagePermitSubmitted, models.StagePermitApproved},
		},
	}

	for _, j := range jobs {
		jobID := j.JobID
		wf, err := engine.Create(ctx, tenant.ID, models.SubjectRef{JobID: &jobID}, "seed-script")
		if err != nil {
			logger.Error("Failed to seed workflow", "job", jobID, "error", err)
			continue
		}
		if wf.Version > 1 || wf.CurrentStage != models.StageSubmitDocuments {
			logger.Info("Skipping already-seeded workflow", "job", jobID, "stage", wf.CurrentStage)
			continue
		}

		if _, err := engine.UpdateFlags(ctx, wf.ID, j.Flags, "seed-script"); err != nil {
			logger.Error("Failed to set flags", "job", jobID, "error", err)
			continue
		}

		for _, stage := range j.To {
			if _, err := engine.Advance(ctx, workflow.AdvanceRequest{
				WorkflowID: wf.ID,
				ToStage:    stage,
				Actor:      "seed-script",
			}); err != nil {
				logger.Error("Failed to advance seeded workflow", "job", jobID, "to", stage, "error", err)
				break
			}
		}
		logger.Info("Seeded workflow", "job", jobID, "id", wf.ID)
	}

	logger.Info("Seeding complete!")
	return nil
}

func boolPtr(b bool) *bool { return &b }
