package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

func main() {
	logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate schema")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	doctors := envInt("SEED_DOCTORS", 100)
	patients := envInt("SEED_PATIENTS", 9000)

	doctorIDs, err := seedDoctors(context.Background(), pool, faker, doctors, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedTemplates(context.Background(), pool, doctorIDs, &logger); err != nil {
		logger.Fatal().Err(err).Msg("seed availability templates")
	}
	if err := seedPatients(context.Background(), pool, faker, patients, &logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	// A handful of hospitals shared between doctors.
	hospitals := make([]uuid.UUID, 5)
	for i := range hospitals {
		hospitals[i] = uuid.New()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + faker.Name()
		spec := specializations[faker.Number(0, len(specializations)-1)]
		hospital := hospitals[faker.Number(0, len(hospitals)-1)]
		inPerson := int64(faker.Number(5, 20)) * 100
		online := inPerson * 3 / 4

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, hospital_id, specialization, online_fee, in_person_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, name, hospital, spec, online, inPerson)
		if err != nil {
			return nil, fmt.Errorf("insert doctor: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return ids, nil
}

// seedTemplates stores the default weekly template so slots can be derived
// without a doctor first opening the availability screen.
func seedTemplates(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, logger *zerolog.Logger) error {
	repo := schedule.NewPgTemplateRepository(pool)
	now := time.Now().UTC()

	for _, id := range doctorIDs {
		t := schedule.DefaultTemplate(id)
		t.UpdatedAt = now
		if _, err := repo.CreateTemplateIfMissing(ctx, t); err != nil {
			return fmt.Errorf("template for %s: %w", id, err)
		}
	}

	logger.Info().Int("count", len(doctorIDs)).Msg("templates seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), faker.Name(), faker.Email(), faker.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert patient: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
