package status

import "testing"

func TestCanUpgrade(t *testing.T) {
	tests := []struct {
		name string
		cur  Status
		next Status
		want bool
	}{
		{"sending to sent", Sending, Sent, true},
		{"sending to delivered", Sending, Delivered, true},
		{"sent to read skips delivered", Sent, Read, true},
		{"queued to sent", Queued, Sent, true},
		{"sending to queued rejected", Sending, Queued, false},
		{"queued to sending rejected", Queued, Sending, false},
		{"repeat rejected", Delivered, Delivered, false},
		{"downgrade rejected", Read, Delivered, false},
		{"read to sent rejected", Read, Sent, false},
		{"any to error", Delivered, Error, true},
		{"error is terminal", Error, Sent, false},
		{"error to error rejected", Error, Error, false},
		{"unknown current rejected", Status("bogus"), Sent, false},
		{"unknown next rejected", Sent, Status("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanUpgrade(tt.cur, tt.next); got != tt.want {
				t.Errorf("CanUpgrade(%s, %s) = %v, want %v", tt.cur, tt.next, got, tt.want)
			}
		})
	}
}

func TestOrdinal(t *testing.T) {
	if Ordinal(Sending) != 0 || Ordinal(Queued) != 0 {
		t.Error("sending and queued must share ordinal 0")
	}
	if Ordinal(Read) != 3 {
		t.Errorf("Ordinal(Read) = %d, want 3", Ordinal(Read))
	}
	if Ordinal(Error) != -1 {
		t.Errorf("Ordinal(Error) = %d, want -1", Ordinal(Error))
	}
	if Ordinal(Status("bogus")) != -1 {
		t.Error("unknown status must have ordinal -1")
	}
}

func TestGlyphAndTitle(t *testing.T) {
	for _, s := range []Status{Sending, Queued, Sent, Delivered, Read, Error} {
		if Glyph(s) == "" {
			t.Errorf("Glyph(%s) is empty", s)
		}
		if Title(s) == "" {
			t.Errorf("Title(%s) is empty", s)
		}
	}
	if Glyph(Status("bogus")) != "" {
		t.Error("unknown status must have no glyph")
	}
}
