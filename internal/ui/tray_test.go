package ui

import "testing"

func TestStatusTitle(t *testing.T) {
	cases := map[int]string{
		0: "Status: Idle",
		1: "Status: Exporting 1 video",
		3: "Status: Exporting 3 videos",
	}
	for n, want := range cases {
		if got := statusTitle(n); got != want {
			t.Errorf("statusTitle(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestIconEmbedded(t *testing.T) {
	if len(iconBytes) < 8 || string(iconBytes[1:4]) != "PNG" {
		t.Fatalf("iconBytes is not a PNG (%d bytes)", len(iconBytes))
	}
}
