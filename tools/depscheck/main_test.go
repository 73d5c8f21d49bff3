package main

import (
	"strings"
	"testing"
)

func TestFindViolations(t *testing.T) {
	stream := `{"ImportPath":"github.com/david-fong/capswalk-sub001/internal/game","Imports":["fmt","github.com/david-fong/capswalk-sub001/internal/grid"]}
{"ImportPath":"github.com/david-fong/capswalk-sub001/internal/lang","Imports":["github.com/gorilla/websocket","github.com/david-fong/capswalk-sub001/internal/net/proto"]}`
	violations, err := findViolations(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("findViolations: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %v", violations)
	}
	if !strings.HasSuffix(violations[0], "internal/net/proto") || !strings.HasSuffix(violations[1], "gorilla/websocket") {
		t.Fatalf("unexpected violations %v", violations)
	}
}

func TestForbidden(t *testing.T) {
	tests := []struct {
		imp  string
		want bool
	}{
		{imp: modulePath + "/internal/net", want: true},
		{imp: modulePath + "/internal/network", want: false},
		{imp: modulePath + "/internal/relay", want: true},
		{imp: "github.com/redis/go-redis/v9", want: true},
		{imp: modulePath + "/logging", want: false},
		{imp: "github.com/google/uuid", want: false},
	}
	for _, tc := range tests {
		if got := forbidden(tc.imp); got != tc.want {
			t.Fatalf("forbidden(%q) = %v, want %v", tc.imp, got, tc.want)
		}
	}
}
