package storage

import "testing"

func TestRenderPath(t *testing.T) {
	path, err := RenderPath("design123", "job456", 900, 1125)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "designs/design123/renders/job456/900x1125.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestRenderPathRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		design, job string
		w, h        int
	}{
		{"../bad", "job", 10, 10},
		{"design", "a/b", 10, 10},
		{"", "job", 10, 10},
		{"design", "job", 0, 10},
	}
	for _, tc := range cases {
		if _, err := RenderPath(tc.design, tc.job, tc.w, tc.h); err == nil {
			t.Errorf("expected error for %+v", tc)
		}
	}
}

func TestValidateObjectName(t *testing.T) {
	valid := []string{"sources/design/photo.jpg", "a.png"}
	for _, name := range valid {
		if _, err := ValidateObjectName(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}
	invalid := []string{"", "/abs.jpg", "a/../b.jpg", "a//b.jpg", `a\b.jpg`}
	for _, name := range invalid {
		if _, err := ValidateObjectName(name); err == nil {
			t.Errorf("%q: expected error", name)
		}
	}
}
