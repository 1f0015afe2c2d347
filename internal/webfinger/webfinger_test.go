package webfinger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Acct
	}{
		{"plain handle", "alice@example.com", Acct{User: "alice", Host: "example.com"}},
		{"acct scheme", "acct:alice@example.com", Acct{User: "alice", Host: "example.com"}},
		{"leading at", "@alice@example.com", Acct{User: "alice", Host: "example.com"}},
		{"url encoded", "alice%40example.com", Acct{User: "alice", Host: "example.com"}},
		{"bare username", "alice", Acct{User: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			acct, err := Parse(tt.query)
			require.NoError(err)
			require.Equal(tt.want, *acct)
		})
	}
}

func TestAcctURLs(t *testing.T) {
	require := require.New(t)
	acct := Acct{User: "alice", Host: "example.com"}
	require.Equal("acct:alice@example.com", acct.String())
	require.Equal("https://example.com/users/alice", acct.ID())
	require.Equal("https://example.com/users/alice/inbox", acct.Inbox())
	require.Equal("https://example.com/.well-known/webfinger?resource=acct%3Aalice%40example.com", acct.Webfinger())
}

func TestActivityPubLink(t *testing.T) {
	require := require.New(t)
	wf := Webfinger{
		Subject: "acct:alice@example.com",
		Links: []Link{
			{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: "https://example.com/@alice"},
			{Rel: "self", Type: "application/activity+json", Href: "https://example.com/users/alice"},
		},
	}
	href, err := wf.ActivityPub()
	require.NoError(err)
	require.Equal("https://example.com/users/alice", href)

	_, err = (&Webfinger{}).ActivityPub()
	require.Error(err)
}
