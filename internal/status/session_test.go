package status

import (
	"testing"

	"github.com/pigeon-im/pigeon/internal/bus"
)

func TestSessionMachineHappyPath(t *testing.T) {
	m := NewSessionMachine(nil)
	for _, to := range []SessionState{Connecting, Syncing, Ready} {
		if err := m.Transition(to); err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
	}
	if !m.Online() {
		t.Error("Online() = false in Ready")
	}
}

func TestSessionMachineRejectsInvalid(t *testing.T) {
	m := NewSessionMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Booting -> Ready should be rejected")
	}
	if m.Current() != Booting {
		t.Errorf("state = %s, want unchanged Booting", m.Current())
	}
}

func TestSessionMachineEmitsChange(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSessionStateChanged, 4)
	defer unsub()

	m := NewSessionMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	change, ok := evt.Payload.(SessionChange)
	if !ok {
		t.Fatalf("payload = %T, want SessionChange", evt.Payload)
	}
	if change.From != Booting || change.To != Connecting {
		t.Errorf("change = %+v", change)
	}
}

func TestSessionMachineReconnectCycle(t *testing.T) {
	m := NewSessionMachine(nil)
	steps := []SessionState{Connecting, Syncing, Ready, Reconnecting, Connecting, Syncing, Ready}
	for _, to := range steps {
		if err := m.Transition(to); err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
	}
}
