package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/ubloxd/at"
)

func TestParams(t *testing.T) {
	t.Run("Signal quality response", func(t *testing.T) {
		p := at.NewParams("+CSQ: 15,99")

		rssi, err := p.NextInt()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ber, err := p.NextInt()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rssi != 15 || ber != 99 {
			t.Errorf("expected 15/99, got %d/%d", rssi, ber)
		}

		if _, err := p.Next(); !errors.Is(err, at.ErrNoParameter) {
			t.Errorf("expected ErrNoParameter, got: %v", err)
		}
	})

	t.Run("Quoted string with comma", func(t *testing.T) {
		p := at.NewParams(`+COPS: 0,0,"vodafone, UK",7`)

		for range 2 {
			if _, err := p.Next(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		op, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if op != "vodafone, UK" {
			t.Errorf("expected quoted operator name, got %q", op)
		}
		rat, err := p.NextInt()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rat != 7 {
			t.Errorf("expected 7, got %d", rat)
		}
	})

	t.Run("Line without information prefix", func(t *testing.T) {
		p := at.NewParams("356938035643809")

		imei, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if imei != "356938035643809" {
			t.Errorf("unexpected parameter: %q", imei)
		}
	})

	t.Run("Empty trailing parameter", func(t *testing.T) {
		p := at.NewParams("+CREG: 2,")

		if _, err := p.NextInt(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s != "" {
			t.Errorf("expected empty parameter, got %q", s)
		}
	})

	t.Run("Non-integer parameter", func(t *testing.T) {
		p := at.NewParams("+CPIN: READY")

		if _, err := p.NextInt(); err == nil {
			t.Error("expected error for non-integer parameter")
		}
	})

	t.Run("Rest", func(t *testing.T) {
		p := at.NewParams("+URAT: 7,8,9")

		if _, err := p.NextInt(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rest := p.Rest(); rest != "8,9" {
			t.Errorf("expected remainder \"8,9\", got %q", rest)
		}
	})
}
