package picker

import (
	"errors"
	"strings"
	"testing"

	"histosync/internal/dataset"
)

func parse(t *testing.T, names ...string) []dataset.ImageFile {
	t.Helper()
	images := make([]dataset.ImageFile, 0, len(names))
	for _, name := range names {
		img, err := dataset.ParseImage(name)
		if err != nil {
			t.Fatalf("ParseImage(%q): %v", name, err)
		}
		images = append(images, img)
	}
	return images
}

func names(images []dataset.ImageFile) string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.Name)
	}
	return strings.Join(out, ",")
}

func TestPick(t *testing.T) {
	cases := []struct {
		name   string
		images []string
		step   int
		want   string
	}{
		{"nearest per window", []string{"20.bmp", "10.bmp", "15.bmp", "12.bmp"}, 5, "10.bmp,15.bmp,20.bmp"},
		{"distance tie goes to lower slice", []string{"10.bmp", "13.bmp", "17.bmp", "20.bmp"}, 5, "10.bmp,13.bmp,20.bmp"},
		{"unversioned wins duplicates", []string{"10(2).bmp", "10.bmp", "10(1).bmp", "15.bmp"}, 5, "10.bmp,15.bmp"},
		{"lowest version without base", []string{"10(3).bmp", "10(1).bmp", "15.bmp"}, 5, "10(1).bmp,15.bmp"},
		{"step of one keeps everything", []string{"1.bmp", "2.bmp", "3.bmp"}, 1, "1.bmp,2.bmp,3.bmp"},
		{"single image", []string{"7.bmp"}, 4, "7.bmp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Pick(parse(t, tc.images...), tc.step)
			if err != nil {
				t.Fatalf("Pick: %v", err)
			}
			if names(got) != tc.want {
				t.Fatalf("Pick = %s, want %s", names(got), tc.want)
			}
		})
	}
}

func TestPickFailsOnGap(t *testing.T) {
	picked, err := Pick(parse(t, "10.bmp", "30.bmp"), 5)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if names(picked) != "10.bmp" {
		t.Fatalf("partial selection = %s", names(picked))
	}
}

func TestPickRejectsInvalidStep(t *testing.T) {
	if _, err := Pick(parse(t, "1.bmp"), 0); err == nil {
		t.Fatal("expected error for zero step")
	}
	if got, err := Pick(nil, 3); err != nil || got != nil {
		t.Fatalf("empty input = %v, %v", got, err)
	}
}
