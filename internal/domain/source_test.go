package domain

import "testing"

func TestBucketForScore(t *testing.T) {
	cases := []struct {
		score int
		want  Bucket
	}{
		{5, BucketHigh},
		{4, BucketHigh},
		{3, BucketPending},
		{2, BucketPending},
		{1, BucketExcluded},
		{0, BucketExcluded},
	}
	for _, c := range cases {
		if got := BucketForScore(c.score); got != c.want {
			t.Errorf("BucketForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestParseSourceType(t *testing.T) {
	valid := []string{"Microblog", "PublicAccount", "Video", "Blog"}
	for _, v := range valid {
		if _, err := ParseSourceType(v); err != nil {
			t.Errorf("ParseSourceType(%q) unexpected error: %v", v, err)
		}
	}

	if _, err := ParseSourceType("Podcast"); err == nil {
		t.Error("ParseSourceType(\"Podcast\") expected error for unknown source type, got nil")
	}
}
