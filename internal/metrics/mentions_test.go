package metrics

import (
	"reflect"
	"testing"
)

func TestParseMentions(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"no mentions here", nil},
		{"<@123>", []string{"123"}},
		{"<@!456>", []string{"456"}},
		{"hey <@1> and <@2>", []string{"1", "2"}},
		{"<@1> twice <@1>", []string{"1", "1"}},
		{"<@abc> malformed", nil},
		{"<@ 123> spaced", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := ParseMentions(tt.content)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseMentions(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestDistinctMentions(t *testing.T) {
	got := distinctMentions("<@2> <@1> <@2> <@3> <@1>")
	want := []string{"2", "1", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("distinctMentions = %v, want %v", got, want)
	}
}
