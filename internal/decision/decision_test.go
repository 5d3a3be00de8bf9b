package decision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipper/internal/services"
)

func validDoc() Document {
	return Document{
		StartSecRel: 2,
		EndSecRel:   14,
		CropX:       120,
		Title:       "rally at the net",
		Description: "short rally",
	}
}

func defaultBounds() Bounds {
	return Bounds{MinDurationSec: 5, MaxDurationSec: 20, WindowSeconds: 20}
}

func TestValidateAcceptsGoodDocument(t *testing.T) {
	if err := validDoc().Validate(defaultBounds()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Document)
	}{
		{"negative start", func(d *Document) { d.StartSecRel = -1 }},
		{"end before start", func(d *Document) { d.EndSecRel = d.StartSecRel }},
		{"beyond window", func(d *Document) { d.StartSecRel = 10; d.EndSecRel = 25 }},
		{"too short", func(d *Document) { d.EndSecRel = d.StartSecRel + 2 }},
		{"too long", func(d *Document) { d.StartSecRel = 0; d.EndSecRel = 20 }},
		{"negative crop", func(d *Document) { d.CropX = -1 }},
		{"empty title", func(d *Document) { d.Title = "  " }},
	}
	bounds := Bounds{MinDurationSec: 5, MaxDurationSec: 18, WindowSeconds: 20}
	for _, tc := range cases {
		doc := validDoc()
		tc.mutate(&doc)
		err := doc.Validate(bounds)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !errors.Is(err, services.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestLatestVersionPicksHighest(t *testing.T) {
	eventDir := t.TempDir()
	for _, v := range []int{1, 2, 10} {
		if err := Save(eventDir, v, validDoc()); err != nil {
			t.Fatalf("Save v%d: %v", v, err)
		}
	}
	// A version directory without a document does not count.
	if err := os.MkdirAll(filepath.Join(eventDir, "api", "v11"), 0o755); err != nil {
		t.Fatal(err)
	}

	latest, err := LatestVersion(eventDir)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest != 10 {
		t.Fatalf("latest = %d, want 10", latest)
	}
}

func TestLatestVersionMissingAPIDir(t *testing.T) {
	latest, err := LatestVersion(t.TempDir())
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest != 0 {
		t.Fatalf("latest = %d, want 0", latest)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	eventDir := t.TempDir()
	want := validDoc()
	if err := Save(eventDir, 3, want); err != nil {
		t.Fatal(err)
	}
	got, err := Load(eventDir, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestLoadMalformedDocument(t *testing.T) {
	eventDir := t.TempDir()
	path := Path(eventDir, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(eventDir, 1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

type fakeExecutor struct {
	run func(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

func (f fakeExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	return f.run(ctx, binary, args, onStdout)
}

func TestServiceInvokeReportsNewVersion(t *testing.T) {
	eventDir := t.TempDir()
	if err := Save(eventDir, 1, validDoc()); err != nil {
		t.Fatal(err)
	}

	exec := fakeExecutor{run: func(ctx context.Context, binary string, args []string, onStdout func(string)) error {
		if binary != "decide" {
			t.Fatalf("binary = %s", binary)
		}
		if args[len(args)-1] != eventDir {
			t.Fatalf("event dir not appended: %v", args)
		}
		return Save(eventDir, 2, validDoc())
	}}
	service := NewService("decide", []string{"--mode", "auto"}, time.Minute, nil, WithExecutor(exec))

	before, after, err := service.Invoke(context.Background(), eventDir)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if before != 1 || after != 2 {
		t.Fatalf("versions: before=%d after=%d", before, after)
	}
}

func TestServiceInvokeCommandFailure(t *testing.T) {
	exec := fakeExecutor{run: func(context.Context, string, []string, func(string)) error {
		return errors.New("exit status 3")
	}}
	service := NewService("decide", nil, time.Minute, nil, WithExecutor(exec))

	_, _, err := service.Invoke(context.Background(), t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestServiceInvokeTimeout(t *testing.T) {
	exec := fakeExecutor{run: func(ctx context.Context, _ string, _ []string, _ func(string)) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	service := NewService("decide", nil, 10*time.Millisecond, nil, WithExecutor(exec))

	_, _, err := service.Invoke(context.Background(), t.TempDir())
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestServiceUnconfigured(t *testing.T) {
	service := NewService("", nil, 0, nil)
	if service.Configured() {
		t.Fatal("empty command must report unconfigured")
	}
	if _, _, err := service.Invoke(context.Background(), t.TempDir()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
