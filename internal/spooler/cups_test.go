package spooler

import (
	"context"
	"errors"
	"testing"
)

func TestParsePrinterList(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []string
	}{
		{
			"two printers",
			"printer HP_LaserJet is idle.  enabled since Sat 30 Aug 2026\n" +
				"printer Front_Desk disabled since Sat 30 Aug 2026\n",
			[]string{"HP_LaserJet", "Front_Desk"},
		},
		{"empty output", "", nil},
		{"noise lines ignored", "no system default destination\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePrinterList(tt.out)
			if len(got) != len(tt.want) {
				t.Fatalf("parsePrinterList() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("printer[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseJobList(t *testing.T) {
	out := "HP_LaserJet-417  alice  15360  Sat 30 Aug 2026 10:02:11 AM\n" +
		"HP_LaserJet-418  bob    1024   Sat 30 Aug 2026 10:03:40 AM\n" +
		"garbage line without a job ref\n"

	jobs := parseJobList(out, "HP_LaserJet")
	if len(jobs) != 2 {
		t.Fatalf("parseJobList() returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != 417 || jobs[0].Owner != "alice" {
		t.Errorf("jobs[0] = %+v, want ID 417 owner alice", jobs[0])
	}
	if jobs[1].ID != 418 || jobs[1].Printer != "HP_LaserJet" {
		t.Errorf("jobs[1] = %+v, want ID 418 on HP_LaserJet", jobs[1])
	}
	if jobs[0].TotalPages != 0 {
		t.Errorf("jobs[0].TotalPages = %d, want 0 (unknown)", jobs[0].TotalPages)
	}
}

func TestParseJobList_QueueNameWithDashes(t *testing.T) {
	jobs := parseJobList("Front-Desk-Label-99  carol  512  Sat 30 Aug 2026\n", "Front-Desk-Label")
	if len(jobs) != 1 {
		t.Fatalf("parseJobList() returned %d jobs, want 1", len(jobs))
	}
	if jobs[0].ID != 99 {
		t.Errorf("jobs[0].ID = %d, want 99", jobs[0].ID)
	}
}

func TestCUPSAdapter_EnumerationFailureDegrades(t *testing.T) {
	a := NewCUPSAdapter(0, nil)
	a.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("scheduler not responding")
	}

	if got := a.ListPrinters(context.Background()); len(got) != 0 {
		t.Errorf("ListPrinters() on failure = %v, want empty", got)
	}
	if got := a.ListJobs(context.Background(), "HP1"); len(got) != 0 {
		t.Errorf("ListJobs() on failure = %v, want empty", got)
	}
}

func TestCUPSAdapter_JobControlCommands(t *testing.T) {
	var gotName string
	var gotArgs []string
	a := NewCUPSAdapter(0, nil)
	a.run = func(ctx context.Context, name string, args ...string) (string, error) {
		gotName = name
		gotArgs = args
		return "", nil
	}

	if err := a.PauseJob(context.Background(), "HP1", 42); err != nil {
		t.Fatalf("PauseJob() error: %v", err)
	}
	if gotName != "lp" || gotArgs[1] != "HP1-42" || gotArgs[3] != "hold" {
		t.Errorf("PauseJob ran %s %v, want lp -i HP1-42 -H hold", gotName, gotArgs)
	}

	if err := a.CancelJob(context.Background(), "HP1", 42); err != nil {
		t.Fatalf("CancelJob() error: %v", err)
	}
	if gotName != "cancel" || gotArgs[0] != "HP1-42" {
		t.Errorf("CancelJob ran %s %v, want cancel HP1-42", gotName, gotArgs)
	}

	if err := a.PausePrinter(context.Background(), "HP1"); err != nil {
		t.Fatalf("PausePrinter() error: %v", err)
	}
	if gotName != "cupsdisable" {
		t.Errorf("PausePrinter ran %s, want cupsdisable", gotName)
	}
}
