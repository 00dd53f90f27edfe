package session

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name, id, want string
	}{
		{"Front Door", "1", "Front_Door"},
		{"Garagem #2 (fundos)", "2", "Garagem__2__fundos_"},
		{"cam_01-b", "3", "cam_01-b"},
		{"Sala/Estar", "4", "Sala_Estar"},
		{"", "77", "camera_77"},
		{"Câmera", "5", "C_mera"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.name, tt.id); got != tt.want {
			t.Errorf("Sanitize(%q, %q) = %q, want %q", tt.name, tt.id, got, tt.want)
		}
	}
}

func TestRecordingPath(t *testing.T) {
	ts := time.Date(2024, 1, 5, 14, 7, 59, 0, time.UTC)
	got := RecordingPath("/data/rec", "Front_Door", ts)
	want := filepath.Join("/data/rec", "Front_Door", "Front_Door_14_07_05_01_2024.mp4")
	if got != want {
		t.Fatalf("RecordingPath = %q, want %q", got, want)
	}
}

func TestRotationScheduler(t *testing.T) {
	var r RotationScheduler
	fired := make(chan int, 2)

	r.Arm(time.Hour, 1, func(e int) { fired <- e })
	r.Arm(10*time.Millisecond, 2, func(e int) { fired <- e })
	if !r.Armed() {
		t.Fatal("not armed")
	}

	select {
	case e := <-fired:
		if e != 2 {
			t.Fatalf("fired epoch %d, want 2", e)
		}
	case <-time.After(time.Second):
		t.Fatal("rotation did not fire")
	}

	r.Arm(10*time.Millisecond, 3, func(e int) { fired <- e })
	r.Cancel()
	if r.Armed() {
		t.Fatal("still armed after cancel")
	}
	select {
	case e := <-fired:
		t.Fatalf("cancelled timer fired epoch %d", e)
	case <-time.After(40 * time.Millisecond):
	}
}
