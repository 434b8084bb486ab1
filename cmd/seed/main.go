package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightclinic/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	staffIDs, err := seedStaff(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed staff: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	serviceIDs, err := seedServices(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedWorkingHours(context.Background(), pool, staffIDs); err != nil {
		log.Fatalf("seed working hours: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, staffIDs, patientIDs, serviceIDs, 2000); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d staff members", count)

	specializations := []string{
		"Dermatology",
		"Massage Therapy",
		"Physiotherapy",
		"Cosmetology",
		"Laser Treatment",
		"General Practice",
		"Nutrition",
		"Acupuncture",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		specialization := specializations[gofakeit.Number(0, len(specializations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO staff (id, name, specialization, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, specialization)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	services := []struct {
		name        string
		durationMin int
		priceCents  int64
	}{
		{"Consultation", 30, 5000},
		{"Deep Tissue Massage", 60, 12000},
		{"Facial Treatment", 45, 9000},
		{"Laser Hair Removal", 30, 15000},
		{"Chemical Peel", 45, 11000},
		{"Physiotherapy Session", 60, 10000},
	}

	log.Printf("seeding %d services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(services))
	for _, svc := range services {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, price_cents, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, svc.name, svc.durationMin, svc.priceCents)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedWorkingHours(ctx context.Context, pool *pgxpool.Pool, staffIDs []uuid.UUID) error {
	log.Printf("seeding working hours for %d staff members", len(staffIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Monday through Friday, 08:00-18:00 with a 12:00-13:00 break.
	for _, staffID := range staffIDs {
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (staff_id, weekday, start_minute, end_minute, break_start_minute, break_end_minute, is_working_day)
				VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			`, staffID, weekday, 8*60, 18*60, 12*60, 13*60)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, staffIDs, patientIDs, serviceIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	rooms := []string{"", "room-1", "room-2", "room-3", "laser-suite"}
	statuses := []string{"scheduled", "confirmed", "completed", "cancelled", "no_show"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		staffID := staffIDs[gofakeit.Number(0, len(staffIDs)-1)]
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		serviceID := serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)]
		room := rooms[gofakeit.Number(0, len(rooms)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		dayOffset := gofakeit.Number(-30, 30)
		startHour := gofakeit.Number(8, 16)
		start := time.Now().UTC().Truncate(24 * time.Hour).
			AddDate(0, 0, dayOffset).
			Add(time.Duration(startHour) * time.Hour)
		end := start.Add(time.Duration(gofakeit.Number(1, 4)*15) * time.Minute)

		var reason *string
		if status == "cancelled" {
			r := gofakeit.Sentence(5)
			reason = &r
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, staff_id, service_id, room,
				start_time, end_time, status, priority, notes,
				cancellation_reason, cancelled_at, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'normal', $9,
				$10, CASE WHEN $10::text IS NULL THEN NULL ELSE now() END, 'seed', now(), now())
		`, uuid.New(), patientID, staffID, serviceID, room,
			start, end, status, gofakeit.Sentence(6), reason)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
