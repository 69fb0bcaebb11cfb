package router

import (
	"reflect"
	"testing"
)

func TestParseMentions_Single(t *testing.T) {
	got := ParseMentions("@reviewer please check this PR and the tests")
	want := []Mention{{Target: "reviewer", Content: "please check this PR and the tests"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseMentions() = %+v, want %+v", got, want)
	}
}

func TestParseMentions_Multiple(t *testing.T) {
	got := ParseMentions("@alice do the thing @bob review it")
	want := []Mention{
		{Target: "alice", Content: "do the thing"},
		{Target: "bob", Content: "review it"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseMentions() = %+v, want %+v", got, want)
	}
}

func TestParseMentions_None(t *testing.T) {
	if got := ParseMentions("no mentions here"); got != nil {
		t.Errorf("ParseMentions() = %+v, want nil", got)
	}
}

func TestHasMentions(t *testing.T) {
	if !HasMentions("@dev hi") {
		t.Error("HasMentions() = false, want true")
	}
	if HasMentions("plain text") {
		t.Error("HasMentions() = true, want false")
	}
}

func TestIsBroadcast(t *testing.T) {
	if !IsBroadcast("status update for everyone") {
		t.Error("IsBroadcast() = false, want true")
	}
	if IsBroadcast("@dev hi") {
		t.Error("IsBroadcast() = true, want false")
	}
}
