package ubx

// Package ubx builds the handful of u-blox configuration messages a base
// station needs: enabling RTCM3 correction outputs, selecting survey-in or
// fixed antenna position mode, and factory reset. Messages are returned as
// fully framed UBX bytes ready to write to the receiver.
