package domain

import "testing"

func TestPostProfile_Insufficient(t *testing.T) {
	cases := []struct {
		name string
		p    PostProfile
		want bool
	}{
		{"empty", PostProfile{}, true},
		{"nickname only", PostProfile{Nickname: "Kim"}, false},
		{"server only", PostProfile{Server: "카인"}, false},
		{"job only", PostProfile{Job: "검귀"}, false},
		{"combat power only", PostProfile{CombatPower: 1}, false},
		{"one rune guild", PostProfile{Guild: "항"}, true},
		{"two rune guild", PostProfile{Guild: "항마"}, false},
		{"level alone", PostProfile{Level: 55}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Insufficient(); got != tc.want {
				t.Fatalf("Insufficient() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if o := Classify("u", PostProfile{}, true); o.Kind != OutcomeInsufficient || !o.UsedFallback {
		t.Fatalf("expected insufficient with fallback, got %+v", o)
	}
	if o := Classify("u", PostProfile{Nickname: "Kim"}, false); !o.Exists() {
		t.Fatalf("expected profile outcome, got %s", o.Kind)
	}
}

func TestGuildMatches(t *testing.T) {
	if !GuildMatches("항마압축파 (분파)", "항마압축파") {
		t.Fatalf("expected substring match")
	}
	if !GuildMatches("Alpha Guild", "alpha") {
		t.Fatalf("expected case-insensitive match")
	}
	if GuildMatches("다른길드", "항마압축파") {
		t.Fatalf("unexpected match")
	}
}

func TestAuthorKey(t *testing.T) {
	if got := AuthorKey("카인", "Kim", "42"); got != "카인:kim" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := AuthorKey("", "Kim", "42"); got != "user:42" {
		t.Fatalf("unexpected fallback key %q", got)
	}
	if got := AuthorKey("", "", ""); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
