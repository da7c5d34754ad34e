package roomconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprinterBacksUpOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	backupDir := filepath.Join(dir, "backups")

	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	fp := NewFingerprinter(path, backupDir)
	changed, err := fp.CheckAndBackup()
	if err != nil {
		t.Fatalf("CheckAndBackup() error = %v", err)
	}
	if !changed {
		t.Error("first CheckAndBackup() should back up the initial content")
	}

	changed, err = fp.CheckAndBackup()
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("CheckAndBackup() with unchanged content should not back up again")
	}

	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err = fp.CheckAndBackup()
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("CheckAndBackup() after content change should back up")
	}

	backups, err := ListBackups(backupDir, "config.ini")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Errorf("ListBackups() returned %d entries, want 2", len(backups))
	}
}

func TestPruneBackupsCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	backupDir := filepath.Join(dir, "backups")

	fp := NewFingerprinter(path, backupDir)
	fp.keep = 2

	for i := 0; i < 4; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := fp.CheckAndBackup(); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := ListBackups(backupDir, "config.ini")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) > 2 {
		t.Errorf("ListBackups() returned %d entries, want at most 2 after pruning", len(backups))
	}
}
