package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/router-for-me/CreditRouter/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := conn.AutoMigrate(&models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestRecordPersistsAttempt(t *testing.T) {
	conn := testDB(t)
	r := NewRecorder(conn)

	r.Record(context.Background(), Attempt{
		RequestID:    "req-1",
		AccountID:    "acct-1",
		Provider:     "openai",
		Model:        "model-a",
		Source:       SourceProvider,
		Failed:       true,
		Error:        errors.New("timeout"),
		Latency:      250 * time.Millisecond,
		InputTokens:  100,
		OutputTokens: 50,
	})

	var row models.Usage
	if errFirst := conn.First(&row).Error; errFirst != nil {
		t.Fatalf("load row: %v", errFirst)
	}
	if !row.Failed || row.LatencyMS != 250 || row.TotalTokens != 150 {
		t.Fatalf("unexpected row %+v", row)
	}
	if len(row.ErrorDetail) == 0 {
		t.Fatalf("expected error detail json")
	}
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	conn := testDB(t)
	r := NewRecorder(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, Attempt{RequestID: "req-1", AccountID: "acct-1", Provider: "openai", Model: "model-a"})

	var count int64
	if errCount := conn.Model(&models.Usage{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected row despite cancelled request context, got %d", count)
	}
}

func TestRetentionCleanerRemovesOldRows(t *testing.T) {
	conn := testDB(t)

	old := models.Usage{RequestID: "old", AccountID: "a", Provider: "p", Model: "m",
		RequestedAt: time.Now().UTC(), CreatedAt: time.Now().UTC().AddDate(0, 0, -120)}
	fresh := models.Usage{RequestID: "fresh", AccountID: "a", Provider: "p", Model: "m",
		RequestedAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	if errCreate := conn.Create(&old).Error; errCreate != nil {
		t.Fatalf("seed old: %v", errCreate)
	}
	if errCreate := conn.Create(&fresh).Error; errCreate != nil {
		t.Fatalf("seed fresh: %v", errCreate)
	}

	c := NewRetentionCleaner(conn, 90)
	if removed := c.CleanupOnce(context.Background()); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	var remaining []models.Usage
	if errFind := conn.Find(&remaining).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(remaining) != 1 || remaining[0].RequestID != "fresh" {
		t.Fatalf("unexpected survivors %+v", remaining)
	}
}
