package cellular_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"i4.energy/across/ubloxd/atclient"
	"i4.energy/across/ubloxd/cellular"
	"i4.energy/across/ubloxd/port"
)

type testDialer struct {
	transport *port.TestTransport
}

func (d *testDialer) Dial(ctx context.Context) (port.Transport, error) {
	return d.transport, nil
}

func newTestDevice(t *testing.T) (*cellular.Device, *port.TestTransport) {
	t.Helper()

	transport := port.NewTestTransport()
	config, err := atclient.NewConfigBuilder().
		WithDialer(&testDialer{transport: transport}).
		WithCommandTimeout(2 * time.Second).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	client, err := atclient.Open(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from Open(): %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return cellular.New(client), transport
}

// respond scripts the module side: the i-th reply is queued once the
// transport has seen i writes, so a reply never precedes its command.
func respond(transport *port.TestTransport, replies ...string) {
	go func() {
		for i, reply := range replies {
			for len(transport.Writes()) < i+1 {
				time.Sleep(time.Millisecond)
			}
			transport.SendData(reply)
		}
	}()
}

func TestInit(t *testing.T) {
	t.Run("Bring-up sequence", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "OK\r\n", "OK\r\n", "OK\r\n")
		if err := d.Init(context.Background()); err != nil {
			t.Fatalf("unexpected error from Init(): %v", err)
		}

		writes := transport.Writes()
		want := []string{"AT\r", "ATE0\r", "AT+CMEE=1\r"}
		if len(writes) != len(want) {
			t.Fatalf("expected %d commands, got %v", len(want), writes)
		}
		for i := range want {
			if writes[i] != want[i] {
				t.Errorf("command %d: expected %q, got %q", i, want[i], writes[i])
			}
		}
	})

	t.Run("Unresponsive module", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "ERROR\r\n")
		err := d.Init(context.Background())
		if err == nil {
			t.Fatal("expected error from Init()")
		}

		var devErr *atclient.DeviceError
		if !errors.As(err, &devErr) {
			t.Errorf("expected the device error to be wrapped, got: %v", err)
		}
	})
}

func TestSignalQuality(t *testing.T) {
	t.Run("RSSI and BER indices", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "+CSQ: 23,0\r\nOK\r\n")
		rssi, ber, err := d.SignalQuality(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from SignalQuality(): %v", err)
		}
		if rssi != 23 || ber != 0 {
			t.Errorf("expected 23/0, got %d/%d", rssi, ber)
		}
	})

	t.Run("Device error passes through", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "+CME ERROR: 3\r\n")
		_, _, err := d.SignalQuality(context.Background())

		var devErr *atclient.DeviceError
		if !errors.As(err, &devErr) {
			t.Fatalf("expected DeviceError, got: %v", err)
		}
		if devErr.Code != 3 {
			t.Errorf("expected cause code 3, got %d", devErr.Code)
		}
	})
}

func TestIMEI(t *testing.T) {
	t.Run("Bare digit line", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "352099001761481\r\nOK\r\n")
		imei, err := d.IMEI(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from IMEI(): %v", err)
		}
		if imei != "352099001761481" {
			t.Errorf("expected IMEI 352099001761481, got %q", imei)
		}
	})
}

func TestOperator(t *testing.T) {
	t.Run("Selected operator name", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "+COPS: 0,0,\"vodafone\",7\r\nOK\r\n")
		name, err := d.Operator(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from Operator(): %v", err)
		}
		if name != "vodafone" {
			t.Errorf("expected operator vodafone, got %q", name)
		}
	})

	t.Run("No operator selected", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "+COPS: 0\r\nOK\r\n")
		name, err := d.Operator(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from Operator(): %v", err)
		}
		if name != "" {
			t.Errorf("expected empty operator, got %q", name)
		}
	})
}

func TestRegistrationStatus(t *testing.T) {
	t.Run("Roaming", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "+CREG: 0,5\r\nOK\r\n")
		status, err := d.RegistrationStatus(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from RegistrationStatus(): %v", err)
		}
		if status != cellular.RegisteredRoaming {
			t.Errorf("expected roaming, got %v", status)
		}
		if !status.Registered() {
			t.Error("expected roaming to count as registered")
		}
	})

	t.Run("Status vocabulary", func(t *testing.T) {
		cases := []struct {
			status     cellular.RegStatus
			registered bool
			name       string
		}{
			{cellular.NotRegistered, false, "not registered"},
			{cellular.RegisteredHome, true, "registered (home)"},
			{cellular.Searching, false, "searching"},
			{cellular.RegistrationDenied, false, "denied"},
			{cellular.RegUnknown, false, "unknown"},
			{cellular.RegisteredRoaming, true, "registered (roaming)"},
		}
		for _, c := range cases {
			if c.status.Registered() != c.registered {
				t.Errorf("%v: expected Registered() == %v", c.status, c.registered)
			}
			if c.status.String() != c.name {
				t.Errorf("expected name %q, got %q", c.name, c.status.String())
			}
		}
	})
}

func TestWaitRegistered(t *testing.T) {
	t.Run("Polls until registered", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport,
			"+CREG: 0,2\r\nOK\r\n",
			"+CREG: 0,2\r\nOK\r\n",
			"+CREG: 0,1\r\nOK\r\n")

		err := d.WaitRegistered(context.Background(),
			atclient.KeepGoingFor(5*time.Second), 10*time.Millisecond)
		if err != nil {
			t.Fatalf("unexpected error from WaitRegistered(): %v", err)
		}
		if got := len(transport.Writes()); got != 3 {
			t.Errorf("expected 3 polls, got %d", got)
		}
	})

	t.Run("ErrAborted when the predicate gives up", func(t *testing.T) {
		d, _ := newTestDevice(t)

		err := d.WaitRegistered(context.Background(),
			atclient.KeepGoingFunc(func() bool { return false }), 10*time.Millisecond)
		if !errors.Is(err, cellular.ErrAborted) {
			t.Errorf("expected ErrAborted, got: %v", err)
		}
	})

	t.Run("Context cancellation wins over the retry loop", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "+CREG: 0,2\r\nOK\r\n")

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()

		err := d.WaitRegistered(ctx, atclient.KeepGoingFor(time.Minute), time.Minute)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})
}

func TestOnRegistrationChange(t *testing.T) {
	t.Run("Status changes reach the callback", func(t *testing.T) {
		d, transport := newTestDevice(t)

		got := make(chan cellular.RegStatus, 1)
		respond(transport, "OK\r\n")
		err := d.OnRegistrationChange(context.Background(), func(s cellular.RegStatus) {
			got <- s
		})
		if err != nil {
			t.Fatalf("unexpected error from OnRegistrationChange(): %v", err)
		}

		if writes := transport.Writes(); len(writes) != 1 || writes[0] != "AT+CREG=1\r" {
			t.Errorf("expected AT+CREG=1 on the wire, got %v", writes)
		}

		transport.SendData("+CREG: 5\r\n")
		select {
		case s := <-got:
			if s != cellular.RegisteredRoaming {
				t.Errorf("expected roaming, got %v", s)
			}
		case <-time.After(time.Second):
			t.Error("expected the callback to be invoked")
		}
	})

	t.Run("Solicited query while the binding is active", func(t *testing.T) {
		d, transport := newTestDevice(t)

		got := make(chan cellular.RegStatus, 4)
		respond(transport, "OK\r\n", "+CREG: 0,1\r\nOK\r\n")
		err := d.OnRegistrationChange(context.Background(), func(s cellular.RegStatus) {
			got <- s
		})
		if err != nil {
			t.Fatalf("unexpected error from OnRegistrationChange(): %v", err)
		}

		// The two-parameter response line is routed to the handler, which
		// must answer the query rather than report mode 0 as a status.
		status, err := d.RegistrationStatus(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from RegistrationStatus(): %v", err)
		}
		if status != cellular.RegisteredHome {
			t.Errorf("expected registered (home), got %v", status)
		}

		select {
		case s := <-got:
			t.Errorf("callback invoked for a solicited response: %v", s)
		case <-time.After(50 * time.Millisecond):
		}

		// Genuine URCs still reach the callback.
		transport.SendData("+CREG: 2\r\n")
		select {
		case s := <-got:
			if s != cellular.Searching {
				t.Errorf("expected searching, got %v", s)
			}
		case <-time.After(time.Second):
			t.Error("expected the callback to be invoked")
		}
	})

	t.Run("Rolls back the binding when the module refuses", func(t *testing.T) {
		d, transport := newTestDevice(t)

		respond(transport, "ERROR\r\n")
		err := d.OnRegistrationChange(context.Background(), func(cellular.RegStatus) {
			t.Error("callback invoked after failed enable")
		})
		if err == nil {
			t.Fatal("expected error from OnRegistrationChange()")
		}

		// The binding is gone: the URC falls through to the unhandled
		// channel instead of the callback.
		transport.SendData("+CREG: 5\r\n")
		select {
		case line := <-d.Client().Unhandled():
			if line != "+CREG: 5" {
				t.Errorf("expected unhandled line %q, got %q", "+CREG: 5", line)
			}
		case <-time.After(time.Second):
			t.Error("expected the line on the unhandled channel")
		}
	})
}
