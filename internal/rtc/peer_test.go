package rtc

import "testing"

func TestParseICEServers(t *testing.T) {
	got := parseICEServers(`[{"urls":["turn:turn.example.com:3478"],"username":"u","credential":"p"}]`)
	if len(got) != 1 || got[0].URLs[0] != "turn:turn.example.com:3478" || got[0].Username != "u" {
		t.Fatalf("unexpected servers: %+v", got)
	}
	for _, in := range []string{"", "not json", "[]"} {
		def := parseICEServers(in)
		if len(def) != 1 || def[0].URLs[0] != "stun:stun.l.google.com:19302" {
			t.Fatalf("parseICEServers(%q) = %+v, want default STUN", in, def)
		}
	}
}
