package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type fakeReservationExpirer struct {
	released  int
	err       error
	lastLimit int
	calls     int
}

func (f *fakeReservationExpirer) ExpireOld(ctx context.Context, limit int) (int, error) {
	f.calls++
	f.lastLimit = limit
	if f.err != nil {
		return 0, f.err
	}
	return f.released, nil
}

func TestReservationExpiryJobSweepsWithConfiguredBatch(t *testing.T) {
	expirer := &fakeReservationExpirer{released: 7}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		Reservations: expirer,
		BatchSize:    25,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one sweep, got %d", expirer.calls)
	}
	if expirer.lastLimit != 25 {
		t.Fatalf("expected batch 25, got %d", expirer.lastLimit)
	}
}

func TestReservationExpiryJobDefaultsBatchSize(t *testing.T) {
	expirer := &fakeReservationExpirer{}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		Reservations: expirer,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.lastLimit != defaultExpirySweepBatch {
		t.Fatalf("expected default batch %d, got %d", defaultExpirySweepBatch, expirer.lastLimit)
	}
}

func TestReservationExpiryJobPropagatesErrors(t *testing.T) {
	expirer := &fakeReservationExpirer{err: errors.New("boom")}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		Reservations: expirer,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
