package link

// Package link owns the transport connection to the GNSS receiver. It feeds
// received bytes through the frame decoder and publishes CRC-valid RTCM3
// frames to the correction bus. The link detects transport failure and
// returns; restart policy belongs to the supervisor.
