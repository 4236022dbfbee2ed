package ntrip

// Package ntrip accepts rover connections and streams raw RTCM3 correction
// frames to them.
//
// The handshake is the minimal NTRIP v1 flow: the rover sends a GET for a
// mountpoint (plus optional Basic credentials), the server answers
// "ICY 200 OK" and then writes correction bytes verbatim until disconnect.
// Sourcetable browsing, NTRIP v2 chunking and caster federation are not
// implemented.
