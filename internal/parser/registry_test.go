package parser

import (
	"context"
	"testing"
)

type fakeParser struct{ name string }

func (f *fakeParser) Name() string { return f.name }
func (f *fakeParser) Parse(ctx context.Context, data []byte) ([]Page, error) {
	return []Page{{Page: 1, Text: "parsed"}}, nil
}

func TestRegistry_ResolveReturnsRegisteredParser(t *testing.T) {
	r := NewRegistry()
	p := &fakeParser{name: "digital-parser"}
	r.Register(PDFTypeDigital, TierFree, p)

	got, err := r.Resolve(TierFree, PDFTypeDigital)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name() != "digital-parser" {
		t.Errorf("got parser %q, want digital-parser", got.Name())
	}
}

func TestRegistry_ResolveErrorsOnUnregisteredType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve(TierEnterprise, PDFTypeScanned); err == nil {
		t.Errorf("expected an error for an unregistered pdf_type")
	}
}

func TestRegistry_ResolveRequiresUpgradeWhenTierTooLow(t *testing.T) {
	r := NewRegistry()
	r.Register(PDFTypeScanned, TierEnterprise, &fakeParser{name: "ocr-parser"})

	_, err := r.Resolve(TierFree, PDFTypeScanned)
	if err == nil {
		t.Fatalf("expected ErrUpgradeRequired for an insufficient tier")
	}
	upgradeErr, ok := err.(*ErrUpgradeRequired)
	if !ok {
		t.Fatalf("expected *ErrUpgradeRequired, got %T", err)
	}
	if upgradeErr.RequiredTier != TierEnterprise || upgradeErr.ActualTier != TierFree {
		t.Errorf("got %+v", upgradeErr)
	}
}

func TestRegistry_ResolveNeverDowngradesSilently(t *testing.T) {
	r := NewRegistry()
	r.Register(PDFTypeScanned, TierPro, &fakeParser{name: "ocr-parser"})
	r.Register(PDFTypeDigital, TierFree, &fakeParser{name: "digital-parser"})

	// A free-tier caller asking for a scanned document must be rejected, not
	// silently routed to the digital parser registered for a different type.
	_, err := r.Resolve(TierFree, PDFTypeScanned)
	if err == nil {
		t.Fatalf("expected an upgrade-required error, got a resolved parser")
	}
}

func TestDetectPDFType(t *testing.T) {
	t.Run("text operators indicate digital", func(t *testing.T) {
		data := []byte("%PDF-1.4\n1 0 obj << /Font >> endobj\nBT (Hello) Tj ET")
		if got := DetectPDFType(data); got != PDFTypeDigital {
			t.Errorf("got %v, want digital", got)
		}
	})
	t.Run("no text operators indicate scanned", func(t *testing.T) {
		data := []byte("%PDF-1.4\n1 0 obj << /Image >> endobj")
		if got := DetectPDFType(data); got != PDFTypeScanned {
			t.Errorf("got %v, want scanned", got)
		}
	})
}
