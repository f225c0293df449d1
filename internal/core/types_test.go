package core

import (
	"encoding/json"
	"testing"
)

func TestVault_IsValid(t *testing.T) {
	if !(Vault{Name: "archives", Region: "us-east-1"}).IsValid() {
		t.Error("expected valid vault")
	}
	if (Vault{Name: "archives"}).IsValid() {
		t.Error("expected vault without region to be invalid")
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobSubmitted, false},
		{JobInProgress, false},
		{JobSucceeded, true},
		{JobFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetrievalJob_Transition(t *testing.T) {
	job := &RetrievalJob{JobID: "j1", Status: JobSubmitted}

	if err := job.Transition(JobInProgress); err != nil {
		t.Fatalf("submitted -> in progress: %v", err)
	}
	if err := job.Transition(JobSucceeded); err != nil {
		t.Fatalf("in progress -> succeeded: %v", err)
	}
	if !job.OutputAvailable {
		t.Error("succeeded job should have output available")
	}
	if err := job.Transition(JobFailed); err == nil {
		t.Error("expected error leaving terminal state")
	}
}

func TestRetrievalJob_SubmittedCanResolveDirectly(t *testing.T) {
	job := &RetrievalJob{JobID: "j2", Status: JobSubmitted}
	if err := job.Transition(JobFailed); err != nil {
		t.Fatalf("submitted -> failed: %v", err)
	}
	if job.OutputAvailable {
		t.Error("failed job must not have output")
	}
}

func TestInventory_Decode(t *testing.T) {
	raw := `{
		"VaultARN": "arn:aws:glacier:us-east-1:012345678901:vaults/archives",
		"InventoryDate": "2026-10-01T00:00:00Z",
		"ArchiveList": [
			{"ArchiveId": "abc", "ArchiveDescription": "report.pdf", "CreationDate": "2026-09-30T10:00:00Z", "Size": 10485760, "SHA256TreeHash": "ff"},
			{"ArchiveId": "def", "ArchiveDescription": "photos.tar", "CreationDate": "2026-09-30T11:00:00Z", "Size": 5, "SHA256TreeHash": "ee"}
		]
	}`

	var inv Inventory
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(inv.ArchiveList) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(inv.ArchiveList))
	}
	if inv.ArchiveList[0].ArchiveDescription != "report.pdf" {
		t.Errorf("unexpected description %q", inv.ArchiveList[0].ArchiveDescription)
	}
	if inv.TotalSize() != 10485765 {
		t.Errorf("unexpected total size %d", inv.TotalSize())
	}
}
