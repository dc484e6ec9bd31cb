package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/storage/memory"
)

func TestAuditRepository_AppendListDelete(t *testing.T) {
	repo := memory.NewAuditRepository()
	now := time.Now().UTC()

	records := []domain.AuditRecord{
		{OrderRef: "TH-1", ProviderStatus: "settlement", Outcome: domain.OutcomeTransitioned, ReceivedAt: now.Add(-48 * time.Hour)},
		{OrderRef: "TH-1", ProviderStatus: "pending", Outcome: domain.OutcomeIgnored, ReceivedAt: now.Add(-72 * time.Hour)},
		{OrderRef: "TH-2", ProviderStatus: "expire", Outcome: domain.OutcomeTransitioned, ReceivedAt: now},
	}
	for _, rec := range records {
		if err := repo.Append(context.Background(), rec); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	list, err := repo.ListByOrder(context.Background(), "TH-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ProviderStatus != "pending" || list[0].ID == "" {
		t.Fatalf("unexpected chronological list: %+v", list)
	}

	deleted, err := repo.DeleteBefore(now.Add(-24*time.Hour), 1)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected batch of 1, got %d", deleted)
	}

	deleted, _ = repo.DeleteBefore(now.Add(-24*time.Hour), 10)
	if deleted != 1 {
		t.Fatalf("expected remaining old record deleted, got %d", deleted)
	}

	if list, _ := repo.ListByOrder(context.Background(), "TH-1"); len(list) != 0 {
		t.Fatalf("expected TH-1 audit to be empty, got %d", len(list))
	}
	if list, _ := repo.ListByOrder(context.Background(), "TH-2"); len(list) != 1 {
		t.Fatalf("fresh record must stay, got %d", len(list))
	}
}
