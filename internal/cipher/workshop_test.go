package cipher

import (
	"reflect"
	"testing"
)

func TestLeadingNumber(t *testing.T) {
	cases := map[string]int{
		"10x car":  10,
		"5x dog":   5,
		"0x nope":  0,
		"no digit": 0,
	}
	for in, want := range cases {
		if got := leadingNumber(in); got != want {
			t.Errorf("leadingNumber(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestMostToysPicksHighestQuantity(t *testing.T) {
	if got := mostToys("5x dog,10x car,3x train"); got != "10x car" {
		t.Fatalf("got %q", got)
	}
}

func TestWorkshopAddDataSplitsCompleteLines(t *testing.T) {
	w := newWorkshop()
	out := w.addData("4x dog,5x cat\n10x car,2x")
	if !reflect.DeepEqual(out, []string{"5x cat\n"}) {
		t.Fatalf("got %v", out)
	}

	out = w.addData(" train\n")
	if !reflect.DeepEqual(out, []string{"10x car\n"}) {
		t.Fatalf("got %v", out)
	}
}

func TestWorkshopAddDataMultipleLinesAtOnce(t *testing.T) {
	w := newWorkshop()
	out := w.addData("1x a,2x b\n3x c,4x d\n")
	if !reflect.DeepEqual(out, []string{"2x b\n", "4x d\n"}) {
		t.Fatalf("got %v", out)
	}
}
