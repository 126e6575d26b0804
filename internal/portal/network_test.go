package portal

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// recordedCall captures one runner invocation.
type recordedCall struct {
	name string
	args []string
}

func newRecordingController(out []byte, err error) (*NMCLIController, *[]recordedCall) {
	var calls []recordedCall
	c := NewNMCLIController("wlan0", "ProxiSwitch_7AEAB2", "PxiSw_7AEAB2", func() string { return "P@ssw0rd123" }, zap.NewNop())
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, recordedCall{name: name, args: args})
		return out, err
	}
	return c, &calls
}

func TestUpInvokesNMCLIHotspotAndHostname(t *testing.T) {
	c, calls := newRecordingController(nil, nil)

	if err := c.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("calls: got %d, want 2", len(*calls))
	}

	call := (*calls)[0]
	if call.name != "nmcli" {
		t.Errorf("command: got %q, want nmcli", call.name)
	}
	want := []string{
		"device", "wifi", "hotspot",
		"ifname", "wlan0",
		"con-name", "proxiswitch-portal",
		"ssid", "ProxiSwitch_7AEAB2",
		"password", "P@ssw0rd123",
	}
	if !reflect.DeepEqual(call.args, want) {
		t.Errorf("args:\n got %v\nwant %v", call.args, want)
	}

	wantHost := []string{"general", "hostname", "PxiSw_7AEAB2"}
	if !reflect.DeepEqual((*calls)[1].args, wantHost) {
		t.Errorf("hostname args:\n got %v\nwant %v", (*calls)[1].args, wantHost)
	}
}

func TestUpHostnameFailureIsNotFatal(t *testing.T) {
	c, _ := newRecordingController(nil, nil)
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if args[0] == "general" {
			return []byte("Error: not authorized\n"), errors.New("exit status 1")
		}
		return nil, nil
	}

	if err := c.Up(); err != nil {
		t.Errorf("Up should tolerate a hostname failure, got %v", err)
	}
}

func TestDownInvokesNMCLIConnectionDown(t *testing.T) {
	c, calls := newRecordingController(nil, nil)

	if err := c.Down(); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls: got %d, want 1", len(*calls))
	}

	call := (*calls)[0]
	want := []string{"connection", "down", "proxiswitch-portal"}
	if !reflect.DeepEqual(call.args, want) {
		t.Errorf("args:\n got %v\nwant %v", call.args, want)
	}
}

func TestUpReadsPasswordPerCall(t *testing.T) {
	password := "first-password"
	c := NewNMCLIController("wlan0", "ProxiSwitch_7AEAB2", "", func() string { return password }, zap.NewNop())

	var got []string
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = append(got, args[len(args)-1])
		return nil, nil
	}

	if err := c.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	password = "second-password"
	if err := c.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}

	want := []string{"first-password", "second-password"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("passwords passed: got %v, want %v", got, want)
	}
}

func TestUpErrorIncludesCommandOutput(t *testing.T) {
	c, _ := newRecordingController([]byte("Error: Connection activation failed.\n"), errors.New("exit status 4"))

	err := c.Up()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exit status 4") {
		t.Errorf("error %q should contain exit status", err)
	}
	if !strings.Contains(err.Error(), "Connection activation failed.") {
		t.Errorf("error %q should contain nmcli output", err)
	}
}

func TestDownErrorIncludesCommandOutput(t *testing.T) {
	c, _ := newRecordingController([]byte("Error: unknown connection\n"), errors.New("exit status 10"))

	err := c.Down()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown connection") {
		t.Errorf("error %q should contain nmcli output", err)
	}
}

func TestRunnerContextHasDeadline(t *testing.T) {
	c, _ := newRecordingController(nil, nil)

	var hadDeadline bool
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		_, hadDeadline = ctx.Deadline()
		return nil, nil
	}

	if err := c.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if !hadDeadline {
		t.Error("expected a deadline on the command context")
	}
}
