package audio

import "testing"

func TestSubdirFor(t *testing.T) {
	cases := map[string]string{
		"apple001":  "a",
		"Zebra01":   "z",
		"bixler001": "bix",
		"ggplay001": "gg",
		"3dprint01": "number",
		"_under001": "number",
		"throw0001": "t",
	}
	for id, want := range cases {
		if got := SubdirFor(id); got != want {
			t.Errorf("SubdirFor(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestURLFor(t *testing.T) {
	got := URLFor("apple001")
	want := "https://media.merriam-webster.com/audio/prons/en/us/mp3/a/apple001.mp3"
	if got != want {
		t.Errorf("URLFor = %q, want %q", got, want)
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"apple001", "Go", "a_b_c", "x"} {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"", "_lead", "../etc/passwd", "a b", "a/b", "a.mp3"} {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}
