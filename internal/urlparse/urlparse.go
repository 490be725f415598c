// Package urlparse classifies video-site URLs pasted on the command line
// into the target they name: a single video, a user, a channel (named or
// id-form), or a playlist.
package urlparse

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind discriminates what a parsed URL points at. The values match the
// catalog table names so targets flow straight into registration.
type Kind string

const (
	KindVideo          Kind = "v"
	KindUser           Kind = "u"
	KindChannelNamed   Kind = "c"
	KindChannelUnnamed Kind = "ch"
	KindPlaylist       Kind = "pl"
)

// Target is a classified URL: the kind plus the bare identifier (video id,
// user name, channel name or id, playlist id).
type Target struct {
	Kind Kind
	ID   string
}

var ErrUnrecognized = errors.New("unrecognized url")

var allowedHosts = map[string]bool{
	"www.youtube.com": true,
	"youtube.com":     true,
	"youtu.be":        true,
}

// Parse classifies raw. Only https URLs on the known hosts are accepted;
// anything else (other schemes, other hosts, unknown path shapes) returns
// ErrUnrecognized wrapped with the offending input.
func Parse(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}
	if u.Scheme != "https" || !allowedHosts[strings.ToLower(u.Host)] {
		return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}

	path := strings.TrimSuffix(u.Path, "/")
	// A trailing /videos tab still names the channel itself.
	path = strings.TrimSuffix(path, "/videos")

	if strings.EqualFold(u.Host, "youtu.be") {
		id := strings.TrimPrefix(path, "/")
		if id == "" || strings.Contains(id, "/") {
			return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
		}
		return Target{Kind: KindVideo, ID: id}, nil
	}

	switch {
	case path == "/watch":
		id := u.Query().Get("v")
		if id == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
		}
		return Target{Kind: KindVideo, ID: id}, nil
	case path == "/playlist":
		id := u.Query().Get("list")
		if id == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
		}
		return Target{Kind: KindPlaylist, ID: id}, nil
	}

	seg := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(seg) != 2 || seg[1] == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}
	switch seg[0] {
	case "user":
		return Target{Kind: KindUser, ID: seg[1]}, nil
	case "c":
		return Target{Kind: KindChannelNamed, ID: seg[1]}, nil
	case "channel":
		return Target{Kind: KindChannelUnnamed, ID: seg[1]}, nil
	}
	return Target{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
}
